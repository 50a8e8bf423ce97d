package domain

import "time"

// RawRecord is a candidate reported by one upstream source before
// normalization. The set of variants is closed: CalendarRow, FeedItem
// and Announcement.
type RawRecord interface {
	Source() string
	FetchedTime() time.Time
	isRawRecord()
}

// Column roles recognised in calendar tables.
const (
	ColumnTicker      = "ticker"
	ColumnCompany     = "company"
	ColumnDrug        = "drug"
	ColumnDate        = "date"
	ColumnIndication  = "indication"
	ColumnDescription = "description"
)

// CalendarRow is one row of an HTML decision calendar, cells keyed by role.
type CalendarRow struct {
	SourceID  string
	FetchedAt time.Time
	Cells     map[string]string
}

// FeedItem is one entry of a JSON decision feed.
type FeedItem struct {
	SourceID    string
	FetchedAt   time.Time
	Ticker      string
	Company     string
	Drug        string
	Date        string
	Indication  string
	Description string
	UpdatedAt   string
}

// Announcement is a free-text press release mentioning a decision date.
type Announcement struct {
	SourceID  string
	FetchedAt time.Time
	Headline  string
	Summary   string
	URL       string
	Published string
}

func (r CalendarRow) Source() string         { return r.SourceID }
func (r CalendarRow) FetchedTime() time.Time { return r.FetchedAt }
func (CalendarRow) isRawRecord()             {}

func (f FeedItem) Source() string         { return f.SourceID }
func (f FeedItem) FetchedTime() time.Time { return f.FetchedAt }
func (FeedItem) isRawRecord()             {}

func (a Announcement) Source() string         { return a.SourceID }
func (a Announcement) FetchedTime() time.Time { return a.FetchedAt }
func (Announcement) isRawRecord()             {}

// FetchReport aggregates one fan-out over every configured source.
type FetchReport struct {
	Records  []RawRecord
	Failures []*FetchError
	Sources  int
}

// AllFailed reports whether no source produced a usable response.
func (r FetchReport) AllFailed() bool {
	return r.Sources > 0 && len(r.Failures) >= r.Sources
}

// NormalizeResult is the output of one normalization pass.
type NormalizeResult struct {
	Records     []PDUFARecord
	Candidates  int
	Dropped     int
	Merged      int
	DropReasons map[string]int
}
