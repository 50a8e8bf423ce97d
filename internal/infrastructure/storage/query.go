package storage

import (
	"strings"

	"PDUFAScanner/internal/domain"
)

const (
	// DefaultPageLimit applies when the caller passes a non-positive limit.
	DefaultPageLimit = 50
)

func normalizePaging(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return page, limit
}

func matchesTicker(r domain.PDUFARecord, ticker string) bool {
	ticker = strings.TrimSpace(ticker)
	return ticker != "" && strings.EqualFold(r.Ticker, ticker)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchesCompany(r domain.PDUFARecord, company string) bool {
	company = strings.TrimSpace(company)
	return company != "" && containsFold(r.Company, company)
}

func matchesSearch(r domain.PDUFARecord, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return containsFold(r.Company, text) || containsFold(r.Drug, text) || containsFold(r.Ticker, text)
}
