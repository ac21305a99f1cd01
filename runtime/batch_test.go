package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/velocitylabs/vcollect/runtime"
	"github.com/velocitylabs/vcollect/types"
)

// scriptedBatch wires a BatchRunner whose jobs resolve instantly and
// run from a per-slug script of results.
func scriptedBatch(results map[string]types.RunStatus) (*runtime.BatchRunner, *[]string) {
	var mu sync.Mutex
	var order []string
	runner := &runtime.BatchRunner{
		LoadJob: func(ctx context.Context, slug string) (*types.Job, error) {
			if _, ok := results[slug]; !ok {
				return nil, fmt.Errorf("job %q not found", slug)
			}
			return &types.Job{Slug: slug, Command: "show x",
				Execution: types.ExecutionPolicy{MaxWorkers: 1, Timeout: time.Second}}, nil
		},
		RunJob: func(ctx context.Context, job *types.Job) (*types.RunResult, error) {
			mu.Lock()
			order = append(order, job.Slug)
			mu.Unlock()
			status := results[job.Slug]
			run := &types.RunResult{JobSlug: job.Slug, Status: status, Total: 2}
			switch status {
			case types.StatusSuccess:
				run.Success = 2
			case types.StatusPartial:
				run.Success, run.Failed = 1, 1
			case types.StatusFailed:
				run.Failed = 2
			}
			return run, nil
		},
	}
	return runner, &order
}

func TestBatch_SequentialOrder(t *testing.T) {
	runner, order := scriptedBatch(map[string]types.RunStatus{
		"arp": types.StatusSuccess, "version": types.StatusSuccess, "mac": types.StatusSuccess,
	})

	result, err := runner.Run(context.Background(), &types.Batch{
		Name: "nightly", Jobs: []string{"arp", "version", "mac"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"arp", "version", "mac"}
	if len(*order) != 3 {
		t.Fatalf("expected 3 jobs run, got %v", *order)
	}
	for i, slug := range want {
		if (*order)[i] != slug {
			t.Errorf("job %d = %q, want %q", i, (*order)[i], slug)
		}
	}
	if !result.AllSucceeded() {
		t.Errorf("expected all succeeded: %+v", result)
	}
	if result.DevicesTotal != 6 || result.DevicesSuccess != 6 {
		t.Errorf("device totals = %d/%d, want 6/6", result.DevicesTotal, result.DevicesSuccess)
	}
}

func TestBatch_StopOnFailureCancelsRemaining(t *testing.T) {
	runner, order := scriptedBatch(map[string]types.RunStatus{
		"arp": types.StatusSuccess, "version": types.StatusFailed, "mac": types.StatusSuccess,
	})

	result, err := runner.Run(context.Background(), &types.Batch{
		Name: "nightly", Jobs: []string{"arp", "version", "mac"}, StopOnFailure: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*order) != 2 {
		t.Errorf("third job should never start, ran %v", *order)
	}
	if result.JobsFailed != 1 || result.JobsCancelled != 1 || result.JobsSucceeded != 1 {
		t.Errorf("counts: %+v", result)
	}
	if result.Runs[2].Status != types.StatusCancelled {
		t.Errorf("cancelled job status = %s", result.Runs[2].Status)
	}
}

func TestBatch_PartialDoesNotStop(t *testing.T) {
	runner, order := scriptedBatch(map[string]types.RunStatus{
		"arp": types.StatusPartial, "version": types.StatusSuccess,
	})

	result, err := runner.Run(context.Background(), &types.Batch{
		Name: "nightly", Jobs: []string{"arp", "version"}, StopOnFailure: true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*order) != 2 {
		t.Errorf("partial must not trigger the stop, ran %v", *order)
	}
	if result.JobsPartial != 1 || result.JobsSucceeded != 1 {
		t.Errorf("counts: %+v", result)
	}
}

func TestBatch_MissingJobBecomesFailedRun(t *testing.T) {
	runner, _ := scriptedBatch(map[string]types.RunStatus{"arp": types.StatusSuccess})

	result, err := runner.Run(context.Background(), &types.Batch{
		Name: "nightly", Jobs: []string{"ghost", "arp"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Runs[0].Status != types.StatusFailed {
		t.Errorf("missing job should fail its slot, got %s", result.Runs[0].Status)
	}
	if result.Runs[1].Status != types.StatusSuccess {
		t.Errorf("later jobs should still run, got %s", result.Runs[1].Status)
	}
	if result.JobsFailed != 1 || result.JobsSucceeded != 1 {
		t.Errorf("counts: %+v", result)
	}
}

func TestBatch_ParallelRunsEverything(t *testing.T) {
	runner, order := scriptedBatch(map[string]types.RunStatus{
		"arp": types.StatusSuccess, "version": types.StatusSuccess,
		"mac": types.StatusSuccess, "route": types.StatusSuccess,
	})

	result, err := runner.Run(context.Background(), &types.Batch{
		Name: "nightly", Jobs: []string{"arp", "version", "mac", "route"},
		MaxConcurrentJobs: 2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(*order) != 4 {
		t.Errorf("expected 4 jobs run, got %v", *order)
	}
	if !result.AllSucceeded() {
		t.Errorf("expected all succeeded: %+v", result)
	}
}

func TestBatch_EmptyBatchIsConfigError(t *testing.T) {
	runner, _ := scriptedBatch(nil)
	_, err := runner.Run(context.Background(), &types.Batch{Name: "empty"})
	if err == nil {
		t.Fatal("expected config error")
	}
	if types.KindOf(err) != types.ErrKindConfig {
		t.Errorf("kind = %s, want config_error", types.KindOf(err))
	}
}
