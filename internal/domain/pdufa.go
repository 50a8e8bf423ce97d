package domain

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// PDUFARecord is the canonical, deduplicated view of one FDA decision.
type PDUFARecord struct {
	Ticker      string    `json:"ticker,omitempty"`
	Company     string    `json:"company" validate:"required"`
	Drug        string    `json:"drug" validate:"required"`
	PDUFADate   Date      `json:"pdufaDate" validate:"required"`
	Indication  string    `json:"indication,omitempty"`
	Description string    `json:"description,omitempty"`
	Sources     []string  `json:"sources"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RecordKey identifies a (company, drug) pair independent of spelling.
type RecordKey struct {
	Company string
	Drug    string
}

// String joins both parts for use as a map or cache key.
func (k RecordKey) String() string {
	return k.Company + "|" + k.Drug
}

// EventKey identifies one decision: a (company, drug, date) tuple.
type EventKey struct {
	RecordKey
	Date Date
}

// String joins all parts for use as a ledger key.
func (k EventKey) String() string {
	return k.RecordKey.String() + "|" + k.Date.String()
}

// Key returns the record identity used for upserts.
func (r PDUFARecord) Key() RecordKey {
	return RecordKey{
		Company: NormalizeCompany(r.Company),
		Drug:    NormalizeDrug(r.Drug),
	}
}

// EventKey returns the identity used for alert idempotency.
func (r PDUFARecord) EventKey() EventKey {
	return EventKey{RecordKey: r.Key(), Date: r.PDUFADate}
}

// Completeness counts the optional fields that carry a value.
func (r PDUFARecord) Completeness() int {
	score := 0
	for _, v := range []string{r.Ticker, r.Indication, r.Description} {
		if strings.TrimSpace(v) != "" {
			score++
		}
	}
	return score
}

// SameContent reports whether two records carry the same facts. LastUpdated
// is ignored.
func (r PDUFARecord) SameContent(other PDUFARecord) bool {
	return r.Ticker == other.Ticker &&
		r.Company == other.Company &&
		r.Drug == other.Drug &&
		r.PDUFADate.Equal(other.PDUFADate) &&
		r.Indication == other.Indication &&
		r.Description == other.Description &&
		strings.Join(r.Sources, ",") == strings.Join(other.Sources, ",")
}

// ApplyUpdate folds an incoming record into the stored one. Empty optional
// fields never erase stored values and sources accumulate. changed is false
// when the stored record already carries the same facts, in which case the
// stored LastUpdated is kept. revised is true when the decision date moved.
func ApplyUpdate(stored, incoming PDUFARecord) (merged PDUFARecord, changed, revised bool) {
	merged = incoming.Clone()
	if merged.Ticker == "" {
		merged.Ticker = stored.Ticker
	}
	if merged.Indication == "" {
		merged.Indication = stored.Indication
	}
	if merged.Description == "" {
		merged.Description = stored.Description
	}
	merged.Sources = MergeSources(stored.Sources, incoming.Sources)

	if merged.SameContent(stored) {
		return stored.Clone(), false, false
	}
	if merged.LastUpdated.Before(stored.LastUpdated) {
		merged.LastUpdated = stored.LastUpdated
	}
	return merged, true, !merged.PDUFADate.Equal(stored.PDUFADate)
}

// Clone returns a copy that does not share the Sources slice.
func (r PDUFARecord) Clone() PDUFARecord {
	c := r
	c.Sources = append([]string(nil), r.Sources...)
	return c
}

// MergeSources returns the sorted union of both source sets.
func MergeSources(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}
	merged := make([]string, 0, len(set))
	for s := range set {
		merged = append(merged, s)
	}
	sort.Strings(merged)
	return merged
}

// SortRecords orders records by decision date, then company, then drug.
func SortRecords(records []PDUFARecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.PDUFADate.Equal(b.PDUFADate) {
			return a.PDUFADate.Before(b.PDUFADate)
		}
		if a.Company != b.Company {
			return a.Company < b.Company
		}
		return a.Drug < b.Drug
	})
}

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]+`)
	companySuffix  = regexp.MustCompile(`\b(inc|incorporated|corp|corporation|co|company|ltd|limited|plc|llc|sa|ag|nv|se|holdings)\b`)
	collapseSpaces = regexp.MustCompile(`\s+`)
)

// NormalizeCompany lowercases, strips punctuation and corporate suffixes.
func NormalizeCompany(name string) string {
	n := strings.ToLower(name)
	n = nonAlnum.ReplaceAllString(n, " ")
	n = companySuffix.ReplaceAllString(n, " ")
	n = collapseSpaces.ReplaceAllString(n, "")
	return n
}

// NormalizeDrug lowercases and strips everything but letters and digits,
// so "AC-1", "ac 1" and "AC1" collapse to one key.
func NormalizeDrug(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// Revision is a superseded decision date kept for audit.
type Revision struct {
	Key          RecordKey `json:"-"`
	Company      string    `json:"company"`
	Drug         string    `json:"drug"`
	PreviousDate Date      `json:"previousDate"`
	NewDate      Date      `json:"newDate"`
	RevisedAt    time.Time `json:"revisedAt"`
}

// UpsertResult tallies what an upsert did.
type UpsertResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Revised   int `json:"revised"`
}

// Total is the number of records handled.
func (u UpsertResult) Total() int {
	return u.Inserted + u.Updated + u.Unchanged
}

// Page is one slice of a paginated listing.
type Page struct {
	Records    []PDUFARecord `json:"records"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// NewPage slices sorted records into a page; page is 1-indexed.
func NewPage(sorted []PDUFARecord, page, limit int) Page {
	total := len(sorted)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]PDUFARecord, 0, end-start)
	for _, r := range sorted[start:end] {
		out = append(out, r.Clone())
	}
	return Page{
		Records:    out,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: TotalPages(total, limit),
	}
}

// TotalPages rounds up total/limit.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Stats aggregates store contents.
type Stats struct {
	Total         int            `json:"total"`
	Upcoming      int            `json:"upcoming"`
	Past          int            `json:"past"`
	NextThirty    int            `json:"nextThirtyDays"`
	Tickers       int            `json:"tickers"`
	Companies     int            `json:"companies"`
	Revisions     int            `json:"revisions"`
	BySource      map[string]int `json:"bySource"`
	NextDecision  *PDUFARecord   `json:"nextDecision,omitempty"`
	LastUpdatedAt *time.Time     `json:"lastUpdatedAt,omitempty"`
}

// ComputeStats derives aggregate counts from a full record listing.
func ComputeStats(records []PDUFARecord, revisions int, today Date) Stats {
	stats := Stats{Total: len(records), Revisions: revisions, BySource: map[string]int{}}
	tickers := map[string]struct{}{}
	companies := map[string]struct{}{}
	horizon := today.AddDays(30)

	for i := range records {
		r := records[i]
		if r.Ticker != "" {
			tickers[r.Ticker] = struct{}{}
		}
		companies[NormalizeCompany(r.Company)] = struct{}{}
		for _, s := range r.Sources {
			stats.BySource[s]++
		}

		if r.PDUFADate.Before(today) {
			stats.Past++
		} else {
			stats.Upcoming++
			if !r.PDUFADate.After(horizon) {
				stats.NextThirty++
			}
			if stats.NextDecision == nil || r.PDUFADate.Before(stats.NextDecision.PDUFADate) {
				next := r.Clone()
				stats.NextDecision = &next
			}
		}

		if stats.LastUpdatedAt == nil || r.LastUpdated.After(*stats.LastUpdatedAt) {
			ts := r.LastUpdated
			stats.LastUpdatedAt = &ts
		}
	}

	stats.Tickers = len(tickers)
	stats.Companies = len(companies)
	return stats
}
