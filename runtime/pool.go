package runtime

import (
	"context"
	"sync"

	"github.com/velocitylabs/vcollect/types"
)

// Pool fans devices out to a bounded set of workers and streams
// progress events back in completion order.
type Pool struct {
	// Workers is the concurrency bound; values below 1 run serially.
	Workers int

	// Work produces the outcome for one device. It must honor ctx and
	// return rather than block indefinitely.
	Work func(ctx context.Context, device types.Device) types.DeviceOutcome
}

// Run schedules every device and returns the progress channel. The
// channel carries exactly len(devices) events, Seq assigned as outcomes
// arrive, then closes. On cancellation, devices never handed to a
// worker surface as skipped outcomes; in-flight devices finish under
// their own deadline handling.
func (p *Pool) Run(ctx context.Context, devices []types.Device) <-chan types.ProgressEvent {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(devices) && len(devices) > 0 {
		workers = len(devices)
	}

	// Buffer keeps workers from stalling on a slow progress consumer.
	outcomes := make(chan types.DeviceOutcome, 2*workers)
	queue := make(chan types.Device)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)
		for i := range devices {
			select {
			case queue <- devices[i]:
			case <-ctx.Done():
				// Everything not yet scheduled is skipped, this device
				// included.
				for _, d := range devices[i:] {
					outcomes <- skippedOutcome(d, ctx.Err())
				}
				return
			}
		}
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range queue {
				outcomes <- p.Work(ctx, device)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	events := make(chan types.ProgressEvent, 2*workers)
	go func() {
		defer close(events)
		seq := 0
		for outcome := range outcomes {
			seq++
			events <- types.ProgressEvent{Seq: seq, Total: len(devices), Outcome: outcome}
		}
	}()
	return events
}

func skippedOutcome(device types.Device, cause error) types.DeviceOutcome {
	outcome := types.DeviceOutcome{
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Host:       device.PrimaryAddress,
		Skipped:    true,
		ErrMessage: "run cancelled before device was scheduled",
	}
	if cause != nil {
		outcome.ErrMessage = outcome.ErrMessage + ": " + cause.Error()
	}
	return outcome
}
