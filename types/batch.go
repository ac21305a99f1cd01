package types

import (
	"fmt"
	"time"
)

// Batch is an ordered composition of jobs executed as one operator action.
// Batches are human-editable YAML files, one per file.
type Batch struct {
	Name        string
	Description string
	Jobs        []string

	// StopOnFailure cancels subsequent jobs after a failed (not partial)
	// job completion.
	StopOnFailure bool

	// InterJobPause sleeps between consecutive jobs in sequential mode.
	// Parallel batches (MaxConcurrentJobs > 1) ignore it; there is no
	// meaningful "between" once jobs overlap.
	InterJobPause time.Duration

	// MaxConcurrentJobs bounds job-level parallelism. Zero or one means
	// sequential execution in list order.
	MaxConcurrentJobs int
}

// Validate checks the structural invariants of a batch descriptor.
func (b *Batch) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if len(b.Jobs) == 0 {
		return fmt.Errorf("batch %s: jobs list is empty", b.Name)
	}
	for i, slug := range b.Jobs {
		if slug == "" {
			return fmt.Errorf("batch %s: empty job reference at index %d", b.Name, i)
		}
	}
	return nil
}

// BatchResult aggregates the outcome of a batch execution.
type BatchResult struct {
	Name        string
	StartedAt   time.Time
	CompletedAt time.Time

	JobsAttempted int
	JobsSucceeded int
	JobsPartial   int
	JobsFailed    int
	JobsCancelled int

	// Device totals summed across all attempted jobs.
	DevicesTotal   int
	DevicesSuccess int
	DevicesFailed  int
	DevicesSkipped int

	Runs []RunResult
}

// Duration is the batch's wall time.
func (b *BatchResult) Duration() time.Duration {
	return b.CompletedAt.Sub(b.StartedAt)
}

// AllSucceeded reports whether every attempted job finished with
// StatusSuccess and nothing was cancelled.
func (b *BatchResult) AllSucceeded() bool {
	return b.JobsFailed == 0 && b.JobsPartial == 0 && b.JobsCancelled == 0 &&
		b.JobsAttempted > 0
}
