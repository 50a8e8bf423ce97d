package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"PDUFAScanner/internal/domain"
)

var (
	tickerParen   = regexp.MustCompile(`\((?:(?:NASDAQ|Nasdaq|NYSE American|NYSE|AMEX|OTCQB|OTCQX|OTC|TSX|TSXV)\s*:\s*)?\$?([A-Z]{1,5}(?:\.[A-Z])?)\)`)
	tickerClean   = regexp.MustCompile(`[^A-Z.]`)
	drugAfterFor  = regexp.MustCompile(`\bfor\s+([A-Za-z0-9][A-Za-z0-9\-]*(?:\s*\([A-Za-z0-9\- ]+\))?)`)
	drugCodeName  = regexp.MustCompile(`\b[A-Z]{2,5}-\d{2,6}\b`)
	indicationFor = regexp.MustCompile(`(?i)for the treatment of ([^.;]+)`)
	companyVerb   = regexp.MustCompile(`(?i)\s+(announces|receives|reports|provides|confirms|says)\b`)

	dateCandidates = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
		regexp.MustCompile(`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}`),
		regexp.MustCompile(`\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4}`),
	}
)

// drug captures after "for" that are ordinary words, not product names.
var drugStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "its": {}, "their": {}, "treatment": {}, "patients": {},
	"adults": {}, "adult": {}, "children": {}, "use": {}, "approval": {}, "review": {},
}

// Adapt converts one raw variant into a candidate canonical record.
// Field validation happens later in the normalizer.
func Adapt(raw domain.RawRecord) (domain.PDUFARecord, error) {
	switch r := raw.(type) {
	case domain.CalendarRow:
		return adaptCalendarRow(r)
	case domain.FeedItem:
		return adaptFeedItem(r)
	case domain.Announcement:
		return adaptAnnouncement(r)
	default:
		return domain.PDUFARecord{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported raw record %T", raw)}
	}
}

func adaptCalendarRow(r domain.CalendarRow) (domain.PDUFARecord, error) {
	date, err := extractDate(r.Cells[domain.ColumnDate])
	if err != nil {
		return domain.PDUFARecord{}, &domain.ValidationError{Source: r.SourceID, Field: "pdufaDate", Reason: err.Error()}
	}

	return domain.PDUFARecord{
		Ticker:      cleanTicker(r.Cells[domain.ColumnTicker]),
		Company:     cleanText(r.Cells[domain.ColumnCompany]),
		Drug:        cleanText(r.Cells[domain.ColumnDrug]),
		PDUFADate:   date,
		Indication:  cleanText(r.Cells[domain.ColumnIndication]),
		Description: cleanText(r.Cells[domain.ColumnDescription]),
		Sources:     []string{r.SourceID},
		LastUpdated: r.FetchedAt.UTC(),
	}, nil
}

func adaptFeedItem(f domain.FeedItem) (domain.PDUFARecord, error) {
	date, err := extractDate(f.Date)
	if err != nil {
		return domain.PDUFARecord{}, &domain.ValidationError{Source: f.SourceID, Field: "pdufaDate", Reason: err.Error()}
	}

	updated := f.FetchedAt.UTC()
	if f.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(f.UpdatedAt)); err == nil {
			updated = ts.UTC()
		}
	}

	return domain.PDUFARecord{
		Ticker:      cleanTicker(f.Ticker),
		Company:     cleanText(f.Company),
		Drug:        cleanText(f.Drug),
		PDUFADate:   date,
		Indication:  cleanText(f.Indication),
		Description: cleanText(f.Description),
		Sources:     []string{f.SourceID},
		LastUpdated: updated,
	}, nil
}

func adaptAnnouncement(a domain.Announcement) (domain.PDUFARecord, error) {
	text := cleanText(a.Headline + ". " + a.Summary)

	// Prefer a date mentioned after the PDUFA keyword over e.g. a dateline.
	dateText := text
	if idx := strings.Index(strings.ToUpper(text), "PDUFA"); idx >= 0 {
		dateText = text[idx:]
	}
	date, err := extractDate(dateText)
	if err != nil {
		date, err = extractDate(text)
	}
	if err != nil {
		return domain.PDUFARecord{}, &domain.ValidationError{Source: a.SourceID, Field: "pdufaDate", Reason: err.Error()}
	}

	headline := cleanText(a.Headline)
	record := domain.PDUFARecord{
		Company:     announcementCompany(headline),
		Drug:        announcementDrug(text),
		PDUFADate:   date,
		Description: headline,
		Sources:     []string{a.SourceID},
		LastUpdated: a.FetchedAt.UTC(),
	}
	if m := tickerParen.FindStringSubmatch(text); m != nil {
		record.Ticker = m[1]
	}
	if m := indicationFor.FindStringSubmatch(text); m != nil {
		record.Indication = strings.TrimSpace(m[1])
	}
	return record, nil
}

func announcementCompany(headline string) string {
	if loc := tickerParen.FindStringIndex(headline); loc != nil {
		return strings.TrimSpace(headline[:loc[0]])
	}
	if loc := companyVerb.FindStringIndex(headline); loc != nil {
		return strings.TrimSpace(headline[:loc[0]])
	}
	return ""
}

func announcementDrug(text string) string {
	for _, m := range drugAfterFor.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(m[1])
		first := strings.ToLower(strings.Fields(candidate)[0])
		if _, stop := drugStopwords[first]; stop {
			continue
		}
		if _, err := domain.ParseDate(candidate); err == nil {
			continue
		}
		return candidate
	}
	if code := drugCodeName.FindString(text); code != "" {
		return code
	}
	return ""
}

// extractDate parses the whole value or, failing that, the first date-like
// substring in it.
func extractDate(value string) (domain.Date, error) {
	if d, err := domain.ParseDate(value); err == nil {
		return d, nil
	}
	for _, expr := range dateCandidates {
		for _, match := range expr.FindAllString(value, -1) {
			if d, err := domain.ParseDate(match); err == nil {
				return d, nil
			}
		}
	}
	if strings.TrimSpace(value) == "" {
		return domain.Date{}, fmt.Errorf("missing date")
	}
	return domain.Date{}, fmt.Errorf("unparseable date %q", value)
}

func cleanTicker(value string) string {
	value = strings.ToUpper(value)
	if idx := strings.LastIndex(value, ":"); idx >= 0 {
		value = value[idx+1:]
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return tickerClean.ReplaceAllString(fields[0], "")
}

func cleanText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
