package types

import "time"

// RunStatus is the lifecycle state of a job run's history record.
type RunStatus string

const (
	// StatusRunning is set when the history row is created.
	StatusRunning RunStatus = "running"
	// StatusSuccess means every device succeeded.
	StatusSuccess RunStatus = "success"
	// StatusPartial means at least one device succeeded and at least one
	// failed or was skipped.
	StatusPartial RunStatus = "partial"
	// StatusFailed means no device succeeded, or the run aborted before
	// any device was contacted.
	StatusFailed RunStatus = "failed"
	// StatusCancelled marks batch jobs never started due to stop-on-failure.
	StatusCancelled RunStatus = "cancelled"
)

// FinalStatus derives the terminal run status from outcome counts.
func FinalStatus(success, failed, skipped int) RunStatus {
	switch {
	case success == 0:
		return StatusFailed
	case failed == 0 && skipped == 0:
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// RunResult is the aggregate outcome of a single job run.
type RunResult struct {
	// RunID is the process-local correlation id threaded through logs
	// and progress events.
	RunID string

	// HistoryID is the history store row id; zero when history writes
	// were disabled or failed.
	HistoryID int64

	JobSlug string

	StartedAt   time.Time
	CompletedAt time.Time

	// Counts always satisfy Success + Failed + Skipped == Total at the
	// moment Status leaves StatusRunning.
	Total   int
	Success int
	Failed  int
	Skipped int

	Status RunStatus

	// Err is the job-level failure reason, if the run aborted before or
	// during device work.
	Err string

	// Outcomes holds per-device results in completion order.
	Outcomes []DeviceOutcome
}

// Duration is the run's wall time.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
