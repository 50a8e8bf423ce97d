package domain

import "time"

// CycleStatus is the outcome of one scrape cycle.
type CycleStatus string

const (
	CycleSuccess CycleStatus = "success"
	CyclePartial CycleStatus = "partial"
	CycleFailed  CycleStatus = "failed"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// SourceFailure is the JSON-friendly form of a FetchError.
type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// CycleResult summarises a fetch, normalize, persist and alert pass.
type CycleResult struct {
	ID           string          `json:"id"`
	Trigger      Trigger         `json:"trigger"`
	Status       CycleStatus     `json:"status"`
	Message      string          `json:"message,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	Duration     string          `json:"duration"`
	Fetched      int             `json:"fetched"`
	Valid        int             `json:"valid"`
	Dropped      int             `json:"dropped"`
	Upsert       UpsertResult    `json:"upsert"`
	AlertsSent   int             `json:"alertsSent"`
	AlertsFailed int             `json:"alertsFailed"`
	Failures     []SourceFailure `json:"failures,omitempty"`
}

// RecordCount is the number of canonical records persisted by the cycle.
func (c CycleResult) RecordCount() int {
	return c.Upsert.Total()
}

// SchedulerState is the externally visible scheduler status.
type SchedulerState struct {
	Running        bool         `json:"running"`
	CycleInFlight  bool         `json:"cycleInFlight"`
	CronExpression string       `json:"cronExpression"`
	LastRunAt      *time.Time   `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time   `json:"nextRunAt,omitempty"`
	LastRunResult  *CycleResult `json:"lastRunResult,omitempty"`
	TotalRuns      int          `json:"totalRuns"`
	FailedRuns     int          `json:"failedRuns"`
}

// Alert is a notification about an approaching decision.
type Alert struct {
	Record    PDUFARecord `json:"record"`
	DaysUntil int         `json:"daysUntil"`
	Test      bool        `json:"test"`
	CreatedAt time.Time   `json:"createdAt"`
}

// DispatchResult tallies one alert pass.
type DispatchResult struct {
	Qualifying int `json:"qualifying"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// CheckResult is the outcome of one subsystem self-check.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ValidationReport groups the self-checks run by the validate endpoint.
type ValidationReport struct {
	Healthy   bool          `json:"healthy"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Add records a check and keeps Healthy in sync.
func (r *ValidationReport) Add(name string, err error) {
	check := CheckResult{Name: name, OK: err == nil}
	if err != nil {
		check.Message = err.Error()
	}
	r.Checks = append(r.Checks, check)
	r.Healthy = true
	for _, c := range r.Checks {
		if !c.OK {
			r.Healthy = false
			return
		}
	}
}
