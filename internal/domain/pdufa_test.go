package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCompany(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Acme", "ACME, Inc.", "Acme Corp", "acme corporation", " Acme  Holdings "} {
		assert.Equal(t, "acme", NormalizeCompany(in), in)
	}
	assert.Equal(t, "acmetherapeutics", NormalizeCompany("Acme Therapeutics, Inc."))
}

func TestNormalizeDrug(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"AC-1", "ac 1", "AC1", "Ac_1"} {
		assert.Equal(t, "ac1", NormalizeDrug(in), in)
	}
}

func TestRecordKeys(t *testing.T) {
	t.Parallel()

	a := PDUFARecord{Company: "Acme Inc.", Drug: "AC-1", PDUFADate: NewDate(2025, time.May, 1)}
	b := PDUFARecord{Company: "ACME", Drug: "ac1", PDUFADate: NewDate(2025, time.May, 2)}

	require.Equal(t, a.Key(), b.Key())
	require.NotEqual(t, a.EventKey().String(), b.EventKey().String())
}

func TestMergeSources(t *testing.T) {
	t.Parallel()

	got := MergeSources([]string{"rtt", "bpc"}, []string{"bpc", " ", "feed"})
	require.Equal(t, []string{"bpc", "feed", "rtt"}, got)
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	records := make([]PDUFARecord, 5)
	for i := range records {
		records[i] = PDUFARecord{Company: "C", Drug: string(rune('a' + i))}
	}

	p := NewPage(records, 2, 2)
	require.Len(t, p.Records, 2)
	require.Equal(t, "c", p.Records[0].Drug)
	require.Equal(t, 3, p.TotalPages)

	empty := NewPage(records, 9, 2)
	require.Empty(t, empty.Records)
	require.Equal(t, 5, empty.Total)
}

func TestComputeStats(t *testing.T) {
	t.Parallel()

	today := NewDate(2025, time.June, 1)
	records := []PDUFARecord{
		{Ticker: "ACME", Company: "Acme", Drug: "A", PDUFADate: today.AddDays(-3), Sources: []string{"x"}},
		{Ticker: "ACME", Company: "Acme Inc", Drug: "B", PDUFADate: today.AddDays(10), Sources: []string{"x", "y"}},
		{Company: "Private Bio", Drug: "C", PDUFADate: today.AddDays(45), Sources: []string{"y"}},
	}

	stats := ComputeStats(records, 2, today)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Past)
	assert.Equal(t, 2, stats.Upcoming)
	assert.Equal(t, 1, stats.NextThirty)
	assert.Equal(t, 1, stats.Tickers)
	assert.Equal(t, 2, stats.Companies)
	assert.Equal(t, 2, stats.Revisions)
	assert.Equal(t, map[string]int{"x": 2, "y": 2}, stats.BySource)
	require.NotNil(t, stats.NextDecision)
	assert.Equal(t, "B", stats.NextDecision.Drug)
}

func TestApplyUpdate(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	stored := PDUFARecord{
		Ticker: "ACME", Company: "Acme", Drug: "AC-1",
		PDUFADate: NewDate(2025, time.May, 1), Indication: "Migraine",
		Sources: []string{"a"}, LastUpdated: t0,
	}

	same := stored.Clone()
	same.LastUpdated = t0.Add(time.Hour)
	merged, changed, revised := ApplyUpdate(stored, same)
	require.False(t, changed)
	require.False(t, revised)
	require.Equal(t, t0, merged.LastUpdated)

	moved := PDUFARecord{
		Company: "Acme", Drug: "AC-1", PDUFADate: NewDate(2025, time.June, 1),
		Sources: []string{"b"}, LastUpdated: t0.Add(2 * time.Hour),
	}
	merged, changed, revised = ApplyUpdate(stored, moved)
	require.True(t, changed)
	require.True(t, revised)
	require.Equal(t, "ACME", merged.Ticker)
	require.Equal(t, "Migraine", merged.Indication)
	require.Equal(t, []string{"a", "b"}, merged.Sources)
	require.Equal(t, "2025-06-01", merged.PDUFADate.String())
}
