package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/velocitylabs/vcollect/history"
	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/iox"
	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/metrics"
	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
	"github.com/velocitylabs/vcollect/validate"
	"github.com/velocitylabs/vcollect/vault"
)

// JobRunner executes one job against its resolved device set.
//
// Workers only touch the transport, the filesystem and the thread-safe
// metrics collector; every history write happens on the controller
// goroutine draining the progress channel.
type JobRunner struct {
	Inventory   *inventory.Store
	Credentials *vault.Resolver
	Executor    *sshx.Executor

	// Validator is consulted only for jobs with validation enabled.
	Validator *validate.Engine

	// History may be nil to disable the run ledger.
	History *history.Store

	Logger *log.Logger

	// CollectionRoot is the base directory for capture files.
	CollectionRoot string

	// BatchName labels history rows when the run is part of a batch.
	BatchName string

	// Progress, when set, receives every completion-order event. It runs
	// on the controller goroutine and should return quickly.
	Progress func(types.ProgressEvent)

	// now is swappable for tests.
	now func() time.Time
}

func (r *JobRunner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *JobRunner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.NewNop()
}

// Run executes the job. Configuration errors return before any device
// is contacted and leave no history row. Every other failure mode is
// reflected in the RunResult with a nil error.
func (r *JobRunner) Run(ctx context.Context, job *types.Job) (*types.RunResult, error) {
	result := &types.RunResult{
		RunID:     uuid.NewString(),
		JobSlug:   job.Slug,
		StartedAt: r.clock(),
	}

	if err := job.Validate(); err != nil {
		return nil, types.NewDeviceError(types.ErrKindConfig, "job", job.Slug, err)
	}
	if job.Validation.Enabled && r.Validator == nil {
		return nil, types.NewDeviceError(types.ErrKindConfig, "job", job.Slug,
			fmt.Errorf("validation enabled but no template engine is configured"))
	}

	logger := r.logger()
	logger.Info("run started", map[string]any{
		"run_id": result.RunID,
		"job":    job.Slug,
	})

	devices, err := r.Inventory.Resolve(ctx, job.Filter)
	if err != nil {
		return r.finishEarly(ctx, result, err)
	}
	if len(devices) == 0 {
		return r.finishEarly(ctx, result, types.ErrNoMatchingDevices)
	}
	result.Total = len(devices)

	collector := metrics.NewCollector(result.RunID, job.Slug)

	historyID := r.startHistory(ctx, result, len(devices))
	result.HistoryID = historyID

	pool := &Pool{
		Workers: job.Execution.EffectiveWorkers(),
		Work: func(ctx context.Context, device types.Device) types.DeviceOutcome {
			return r.collectDevice(ctx, job, device, collector)
		},
	}

	for event := range pool.Run(ctx, devices) {
		outcome := event.Outcome
		result.Outcomes = append(result.Outcomes, outcome)
		switch {
		case outcome.Success:
			result.Success++
		case outcome.Skipped:
			result.Skipped++
			collector.IncSkipped()
		default:
			result.Failed++
		}

		if historyID != 0 && outcome.CapturePath != "" {
			_, err := r.History.AddCapture(ctx, history.Capture{
				JobRunID:   historyID,
				DeviceID:   outcome.DeviceID,
				DeviceName: outcome.DeviceName,
				Kind:       job.CaptureKind,
				Path:       outcome.CapturePath,
				Bytes:      outcome.CaptureBytes,
				Score:      outcome.Score,
				CapturedAt: r.clock(),
			})
			if err != nil {
				logger.Warn("capture row write failed", map[string]any{
					"device": outcome.DeviceName,
					"error":  err.Error(),
				})
			}
		}

		if r.Progress != nil {
			r.Progress(event)
		}
	}

	result.CompletedAt = r.clock()
	result.Status = types.FinalStatus(result.Success, result.Failed, result.Skipped)
	r.completeHistory(ctx, historyID, result)

	snap := collector.Snapshot()
	logger.Info("run completed", map[string]any{
		"run_id":   result.RunID,
		"job":      job.Slug,
		"status":   string(result.Status),
		"success":  result.Success,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
		"captures": snap.CapturesWritten,
		"bytes":    snap.BytesWritten,
		"elapsed":  result.Duration().String(),
	})
	return result, nil
}

// finishEarly records a run that died before any device was contacted.
func (r *JobRunner) finishEarly(ctx context.Context, result *types.RunResult, cause error) (*types.RunResult, error) {
	result.Err = cause.Error()
	result.Status = types.StatusFailed
	result.CompletedAt = r.clock()

	historyID := r.startHistory(ctx, result, 0)
	result.HistoryID = historyID
	r.completeHistory(ctx, historyID, result)

	r.logger().Error("run aborted", map[string]any{
		"run_id": result.RunID,
		"job":    result.JobSlug,
		"error":  cause.Error(),
	})
	return result, nil
}

func (r *JobRunner) startHistory(ctx context.Context, result *types.RunResult, total int) int64 {
	if r.History == nil {
		return 0
	}
	id, err := r.History.StartRun(ctx, result.RunID, result.JobSlug, r.BatchName, total, result.StartedAt)
	if err != nil {
		r.logger().Warn("history start failed", map[string]any{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
		return 0
	}
	return id
}

func (r *JobRunner) completeHistory(ctx context.Context, id int64, result *types.RunResult) {
	if id == 0 {
		return
	}
	if err := r.History.CompleteRun(ctx, id, result); err != nil {
		r.logger().Warn("history complete failed", map[string]any{
			"run_id": result.RunID,
			"error":  err.Error(),
		})
	}
}

// collectDevice is the per-worker pipeline: resolve credential, run the
// command plan, clean the transcript, validate, persist.
func (r *JobRunner) collectDevice(ctx context.Context, job *types.Job, device types.Device, collector *metrics.Collector) types.DeviceOutcome {
	collector.IncAttempted()
	start := r.clock()

	outcome := types.DeviceOutcome{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Host:       device.PrimaryAddress,
	}

	fail := func(err error) types.DeviceOutcome {
		outcome.ErrKind = types.KindOf(err)
		outcome.ErrMessage = err.Error()
		outcome.Duration = r.clock().Sub(start)
		collector.IncFailed(string(outcome.ErrKind), outcome.Duration)
		r.logger().Warn("device failed", map[string]any{
			"device": device.Name,
			"kind":   string(outcome.ErrKind),
			"error":  err.Error(),
		})
		return outcome
	}

	cred, err := r.Credentials.Resolve(&device)
	if err != nil {
		return fail(err)
	}
	outcome.CredentialID = cred.ID
	outcome.CredentialName = cred.Name

	paging := job.DisablePaging
	if paging == "" {
		paging = device.Platform.PagingCommand
	}

	res, err := r.Executor.Collect(ctx, sshx.Target{
		Host:   device.PrimaryAddress,
		Driver: device.Platform.Driver,
		Auth: sshx.Auth{
			Username:   cred.Username,
			Password:   cred.Password,
			PrivateKey: cred.PrivateKey,
			Passphrase: cred.Passphrase,
		},
	}, sshx.Plan{
		PagingCommand: paging,
		Commands:      job.Commands(),
		CommandPause:  job.Execution.CommandPause,
		Timeout:       job.Execution.Timeout,
	})
	if err != nil {
		return fail(err)
	}
	outcome.Warning = res.Warning
	outcome.Output = sshx.CleanOutput(res.Output, job.Command)

	if job.Validation.Enabled {
		vres, err := r.Validator.Validate(ctx, outcome.Output, job.Validation.TemplateFilter, job.Validation.MinScore)
		if err != nil {
			return fail(err)
		}
		outcome.Score = vres.Score
		outcome.Template = vres.TemplateCommand
		outcome.ValidationStatus = vres.Status

		if vres.Status == types.ValidationPassed {
			collector.IncValidationPassed()
		} else {
			// Unvalidated output is never a success and never a device
			// failure; the device worked, the output did not.
			collector.IncValidationFailed()
			reason := fmt.Errorf("best score %.1f below minimum %.1f", vres.Score, job.Validation.MinScore)
			if vres.Status == types.ValidationNoTemplate {
				reason = fmt.Errorf("no template matches filter %q", job.Validation.TemplateFilter)
			}
			verr := types.NewDeviceError(types.ErrKindValidation, "validate", device.Name, reason)
			outcome.Skipped = true
			outcome.ErrKind = types.ErrKindValidation
			outcome.ErrMessage = verr.Error()
			if !job.Validation.SaveOnFail {
				outcome.Duration = r.clock().Sub(start)
				r.logger().Warn("validation failed", map[string]any{
					"device": device.Name,
					"status": string(vres.Status),
					"score":  vres.Score,
				})
				return outcome
			}
			// save_on_fail keeps the capture for inspection.
		}
	} else {
		outcome.ValidationStatus = types.ValidationSkipped
	}

	path, err := r.saveCapture(job, device, outcome.Output)
	if err != nil {
		return fail(types.NewDeviceError(types.ErrKindPersistence, "save", device.Name, err))
	}
	outcome.CapturePath = path
	outcome.CaptureBytes = int64(len(outcome.Output))
	collector.AddCapture(outcome.CaptureBytes)

	outcome.Duration = r.clock().Sub(start)
	if !outcome.Skipped {
		outcome.Success = true
		collector.IncSucceeded(outcome.Duration)
	}
	r.logger().Debug("device finished", map[string]any{
		"device":  device.Name,
		"elapsed": outcome.Duration.String(),
	})
	return outcome
}

// saveCapture expands the capture path and writes the transcript
// atomically.
func (r *JobRunner) saveCapture(job *types.Job, device types.Device, content string) (string, error) {
	subdir := job.Output.Subdir
	if subdir == "" {
		subdir = job.Slug
	}
	pattern := job.Output.FilenamePattern
	if pattern == "" {
		pattern = types.DefaultFilenamePattern
	}
	name := ExpandFilename(pattern, device.Name, device.ID, r.clock())
	path := filepath.Join(r.CollectionRoot, subdir, name)
	if err := iox.AtomicWrite(path, []byte(content), os.FileMode(0o644)); err != nil {
		return "", err
	}
	return path, nil
}
