package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"PDUFAScanner/internal/domain"
	"PDUFAScanner/internal/infrastructure/storage"
)

func TestRunCyclePartialSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.setReport(domain.FetchReport{
		Sources: 2,
		Records: []domain.RawRecord{
			feedItem("b", "Beta Bio", "BX-101", "2025-04-02"),
			feedItem("b", "Gamma Pharma", "GP-7", "2025-05-01"),
		},
		Failures: []*domain.FetchError{{Source: "a", Err: errors.New("connection refused")}},
	})

	result := h.pipeline.RunCycle(context.Background(), domain.TriggerManual)
	require.Equal(t, domain.CyclePartial, result.Status)
	require.Equal(t, 2, result.Upsert.Inserted)
	require.Equal(t, []domain.SourceFailure{{Source: "a", Error: "connection refused"}}, result.Failures)
	require.NotEmpty(t, result.ID)
	require.Equal(t, domain.TriggerManual, result.Trigger)

	page, err := h.store.QueryAll(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
}

func TestRunCycleCollapsesDuplicates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	dup := feedItem("b", "Acme", "AC-1", "2025-03-20")
	dup.Ticker = "ACME"
	h.source.setReport(domain.FetchReport{
		Sources: 2,
		Records: []domain.RawRecord{
			feedItem("a", "Acme", "AC-1", "2025-03-20"),
			dup,
			feedItem("a", "Beta Bio", "BX-101", "2025-04-02"),
		},
	})

	result := h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
	require.Equal(t, domain.CycleSuccess, result.Status)
	require.Equal(t, 3, result.Fetched)
	require.Equal(t, 2, result.Valid)

	page, err := h.store.QueryAll(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, "ACME", page.Records[0].Ticker)
	require.Equal(t, []string{"a", "b"}, page.Records[0].Sources)

	again := h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
	require.Equal(t, domain.UpsertResult{Unchanged: 2}, again.Upsert)
}

func TestRunCycleFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		report  domain.FetchReport
		store   bool
		message string
	}{
		{
			name: "all sources failed",
			report: domain.FetchReport{Sources: 2, Failures: []*domain.FetchError{
				{Source: "a", Err: errors.New("timeout")},
				{Source: "b", Err: errors.New("403")},
			}},
			message: "all 2 sources failed",
		},
		{
			name:    "no valid records",
			report:  domain.FetchReport{Sources: 1, Records: []domain.RawRecord{feedItem("a", "", "X", "soon")}},
			message: "no valid records",
		},
		{
			name:    "store unavailable",
			report:  domain.FetchReport{Sources: 1, Records: []domain.RawRecord{feedItem("a", "Acme", "AC-1", "2025-03-20")}},
			store:   true,
			message: "persist records",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var h *harness
			if tc.store {
				h = newHarness(t, failingStore{storage.NewMemoryRepository()})
			} else {
				h = newHarness(t, nil)
			}
			h.cache.Set("all:1:50", "stale", 0)
			h.source.setReport(tc.report)

			result := h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
			require.Equal(t, domain.CycleFailed, result.Status)
			require.Contains(t, result.Message, tc.message)
			require.Equal(t, 1, h.cache.Len(), "failed cycles keep the cache")
		})
	}
}

func TestRunCycleClearsCacheAndDispatches(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{name: "discord"}
	h := newHarness(t, nil, notifier)
	h.cache.Set("upcoming:30:2025-03-10", []domain.PDUFARecord{}, 0)
	h.source.setReport(domain.FetchReport{
		Sources: 1,
		Records: []domain.RawRecord{
			feedItem("a", "Acme", "AC-1", "2025-03-12"),
			feedItem("a", "Beta Bio", "BX-101", "2025-06-01"),
		},
	})

	result := h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
	require.Equal(t, domain.CycleSuccess, result.Status)
	require.Zero(t, h.cache.Len())
	require.Equal(t, 1, result.AlertsSent)
	require.Equal(t, 1, notifier.sentCount())

	// The next cycle finds the same facts and must not alert again.
	result = h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
	require.Zero(t, result.AlertsSent)
	require.Equal(t, 1, notifier.sentCount())
}
