package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/types"
)

// BatchRunner executes an ordered composition of jobs. Jobs run
// sequentially in list order unless the batch allows parallelism.
type BatchRunner struct {
	// LoadJob resolves a slug to its descriptor, typically backed by the
	// inventory jobs table.
	LoadJob func(ctx context.Context, slug string) (*types.Job, error)

	// RunJob executes one job, typically JobRunner.Run.
	RunJob func(ctx context.Context, job *types.Job) (*types.RunResult, error)

	Logger *log.Logger

	// now is swappable for tests.
	now func() time.Time
}

func (b *BatchRunner) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *BatchRunner) logger() *log.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return log.NewNop()
}

// Run executes the batch. A failed job (no device succeeded) cancels
// the remaining jobs when StopOnFailure is set; partial jobs never
// trigger the stop. Cancelled jobs appear in the result with
// StatusCancelled and zero device counts.
func (b *BatchRunner) Run(ctx context.Context, batch *types.Batch) (*types.BatchResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, types.NewDeviceError(types.ErrKindConfig, "batch", batch.Name, err)
	}

	result := &types.BatchResult{
		Name:      batch.Name,
		StartedAt: b.clock(),
		Runs:      make([]types.RunResult, len(batch.Jobs)),
	}
	b.logger().Info("batch started", map[string]any{
		"batch": batch.Name,
		"jobs":  len(batch.Jobs),
	})

	if batch.MaxConcurrentJobs > 1 {
		b.runParallel(ctx, batch, result)
	} else {
		b.runSequential(ctx, batch, result)
	}

	result.CompletedAt = b.clock()
	for i := range result.Runs {
		run := &result.Runs[i]
		switch run.Status {
		case types.StatusSuccess:
			result.JobsAttempted++
			result.JobsSucceeded++
		case types.StatusPartial:
			result.JobsAttempted++
			result.JobsPartial++
		case types.StatusFailed:
			result.JobsAttempted++
			result.JobsFailed++
		case types.StatusCancelled:
			result.JobsCancelled++
		}
		result.DevicesTotal += run.Total
		result.DevicesSuccess += run.Success
		result.DevicesFailed += run.Failed
		result.DevicesSkipped += run.Skipped
	}

	b.logger().Info("batch completed", map[string]any{
		"batch":     batch.Name,
		"succeeded": result.JobsSucceeded,
		"partial":   result.JobsPartial,
		"failed":    result.JobsFailed,
		"cancelled": result.JobsCancelled,
		"elapsed":   result.Duration().String(),
	})
	return result, nil
}

func (b *BatchRunner) runSequential(ctx context.Context, batch *types.Batch, result *types.BatchResult) {
	stopped := false
	for i, slug := range batch.Jobs {
		if stopped || ctx.Err() != nil {
			result.Runs[i] = cancelledRun(slug)
			continue
		}
		if i > 0 && batch.InterJobPause > 0 {
			select {
			case <-time.After(batch.InterJobPause):
			case <-ctx.Done():
				result.Runs[i] = cancelledRun(slug)
				continue
			}
		}

		run := b.runOne(ctx, slug)
		result.Runs[i] = *run
		if batch.StopOnFailure && run.Status == types.StatusFailed {
			stopped = true
			b.logger().Warn("stopping batch on failed job", map[string]any{
				"batch": batch.Name,
				"job":   slug,
			})
		}
	}
}

// runParallel overlaps jobs up to MaxConcurrentJobs. InterJobPause does
// not apply here; it paces strictly sequential schedules.
func (b *BatchRunner) runParallel(ctx context.Context, batch *types.Batch, result *types.BatchResult) {
	sem := make(chan struct{}, batch.MaxConcurrentJobs)

	var mu sync.Mutex
	stopped := false

	var wg sync.WaitGroup
	for i, slug := range batch.Jobs {
		wg.Add(1)
		go func(i int, slug string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			skip := stopped || ctx.Err() != nil
			mu.Unlock()
			if skip {
				result.Runs[i] = cancelledRun(slug)
				return
			}

			run := b.runOne(ctx, slug)
			result.Runs[i] = *run
			if batch.StopOnFailure && run.Status == types.StatusFailed {
				mu.Lock()
				stopped = true
				mu.Unlock()
			}
		}(i, slug)
	}
	wg.Wait()
}

// runOne loads and executes a single job; load and config failures
// become failed runs so the batch ledger stays complete.
func (b *BatchRunner) runOne(ctx context.Context, slug string) *types.RunResult {
	started := b.clock()
	job, err := b.LoadJob(ctx, slug)
	if err != nil {
		return failedRun(slug, started, b.clock(), fmt.Errorf("load job: %w", err))
	}
	run, err := b.RunJob(ctx, job)
	if err != nil {
		return failedRun(slug, started, b.clock(), err)
	}
	return run
}

func cancelledRun(slug string) types.RunResult {
	return types.RunResult{
		JobSlug: slug,
		Status:  types.StatusCancelled,
		Err:     "cancelled by batch policy",
	}
}

func failedRun(slug string, started, completed time.Time, err error) *types.RunResult {
	return &types.RunResult{
		JobSlug:     slug,
		StartedAt:   started,
		CompletedAt: completed,
		Status:      types.StatusFailed,
		Err:         err.Error(),
	}
}
