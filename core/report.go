package core

import (
	"errors"
	"time"
)

// Outcome classifies what happened to one unit in an ingestion run.
type Outcome int

const (
	// OutcomeAdded means at least one new chunk was persisted.
	OutcomeAdded Outcome = iota + 1
	// OutcomeUnchanged means every chunk was already indexed.
	OutcomeUnchanged
	// OutcomeTooShort means the unit was filtered out below the minimum length.
	OutcomeTooShort
	// OutcomeFailed means a stage failed for this unit.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeTooShort:
		return "too_short"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// UnitResult is the per-unit outcome collected into a RunReport.
type UnitResult struct {
	Unit          string
	SourceName    string
	DocumentID    string
	Outcome       Outcome
	ChunksAdded   int
	ChunksSkipped int
	Err           error
}

// Triggers recorded on run reports.
const (
	TriggerScheduled = "scheduled"
	TriggerStartup   = "startup"
	TriggerManual    = "manual"
	TriggerUpload    = "upload"
)

// RunStatus is the overall outcome of an ingestion run.
type RunStatus string

const (
	RunStatusNever   RunStatus = "never"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// UnitError is the diagnostic record of one failed unit.
type UnitError struct {
	Source  string
	Unit    string
	Stage   Stage
	Message string
}

// RunReport aggregates unit results for one ingestion run.
// ChunksAdded and ChunksSkipped are the store's added/skipped counts.
type RunReport struct {
	ID                 uint64 // Start time in Unix microseconds, assigned by the run log
	Trigger            string
	StartedAt          time.Time
	FinishedAt         time.Time
	Scraped            int
	TooShort           int
	Failed             int
	DocumentsAdded     int
	DocumentsUnchanged int
	ChunksAdded        int
	ChunksSkipped      int
	EmbeddingFailures  int
	Errors             []UnitError
	Status             RunStatus
	Fatal              string // Error that aborted the run, if any
}

// NewRunReport starts a report for a run begun at now.
func NewRunReport(trigger string, now time.Time) *RunReport {
	return &RunReport{
		Trigger:   trigger,
		StartedAt: now,
		Status:    RunStatusNever,
	}
}

// Record folds one unit result into the report.
func (r *RunReport) Record(res UnitResult) {
	r.Scraped++
	switch res.Outcome {
	case OutcomeAdded:
		r.DocumentsAdded++
	case OutcomeUnchanged:
		r.DocumentsUnchanged++
	case OutcomeTooShort:
		r.TooShort++
	case OutcomeFailed:
		r.Failed++
		ue := UnitError{Source: res.SourceName, Unit: res.Unit}
		if res.Err != nil {
			ue.Message = res.Err.Error()
			var se *StageError
			if errors.As(res.Err, &se) {
				ue.Stage = se.Stage
			}
			if errors.Is(res.Err, ErrEmbedding) {
				r.EmbeddingFailures++
			}
		}
		r.Errors = append(r.Errors, ue)
	}
	r.ChunksAdded += res.ChunksAdded
	r.ChunksSkipped += res.ChunksSkipped
}

// Attempted counts units that reached a success or failure verdict.
// Units filtered as too short are not attempts.
func (r *RunReport) Attempted() int {
	return r.DocumentsAdded + r.DocumentsUnchanged + r.Failed
}

// Succeeded counts units that are fully indexed after the run.
func (r *RunReport) Succeeded() int {
	return r.DocumentsAdded + r.DocumentsUnchanged
}

// Finish stamps the report and derives its status. A fatal error, or attempts
// with no success, make the run a failure.
func (r *RunReport) Finish(now time.Time, fatal error) {
	r.FinishedAt = now
	if fatal != nil {
		r.Fatal = fatal.Error()
		r.Status = RunStatusFailure
		return
	}
	if r.Attempted() > 0 && r.Succeeded() == 0 {
		r.Status = RunStatusFailure
		return
	}
	r.Status = RunStatusSuccess
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SchedulerPhase is the scheduler's lifecycle state.
type SchedulerPhase string

const (
	PhaseIdle    SchedulerPhase = "idle"
	PhaseRunning SchedulerPhase = "running"
	PhaseStopped SchedulerPhase = "stopped"
)

// SchedulerState is a snapshot of the scheduler for status reporting.
type SchedulerState struct {
	Phase         SchedulerPhase
	IsRunning     bool
	Enabled       bool
	Interval      time.Duration
	LastRunAt     time.Time
	NextRunAt     time.Time
	LastRunStatus RunStatus
	LastError     string
	LastReport    *RunReport
}
