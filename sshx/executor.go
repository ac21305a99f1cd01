package sshx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/velocitylabs/vcollect/types"
)

// Plan is the per-device command protocol: an optional paging prelude,
// the ordered command list, and the timing policy.
type Plan struct {
	// PagingCommand is sent first when non-empty; failures downgrade to
	// a warning.
	PagingCommand string

	// Commands run strictly in order on the same session.
	Commands []string

	// CommandPause sleeps between consecutive commands.
	CommandPause time.Duration

	// Timeout is the per-device wall clock covering connect through the
	// last command.
	Timeout time.Duration
}

// Result is the transcript of one device execution.
type Result struct {
	// Output is the raw accumulated transcript, commands separated.
	Output string

	// Warning carries non-fatal notes (paging prelude failure).
	Warning string

	Duration time.Duration
}

// Executor runs Plans against targets through a Dialer.
type Executor struct {
	dialer Dialer
}

// NewExecutor creates an executor over a dialer.
func NewExecutor(dialer Dialer) *Executor {
	return &Executor{dialer: dialer}
}

// Collect opens a session and runs the plan. The wall clock covers the
// dial; exceeding it yields a timeout failure. When ctx itself is
// cancelled the session is closed underneath any in-flight read.
func (e *Executor) Collect(ctx context.Context, target Target, plan Plan) (*Result, error) {
	start := time.Now()

	if plan.Timeout <= 0 {
		return nil, types.NewDeviceError(types.ErrKindConfig, "collect", target.Host,
			fmt.Errorf("timeout must be positive, got %s", plan.Timeout))
	}

	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	session, err := e.dialer.Dial(ctx, target)
	if err != nil {
		return nil, wrapCollectErr(target.Host, err, ctx)
	}

	defer func() { _ = session.Close() }()

	// The watchdog closes a stuck session so in-flight reads unblock when
	// ctx ends; the deferred Close covers every return path.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()

	var result Result

	if plan.PagingCommand != "" {
		if _, err := session.Run(ctx, plan.PagingCommand); err != nil {
			if types.KindOf(err) == types.ErrKindTimeout {
				return nil, wrapCollectErr(target.Host, err, ctx)
			}
			result.Warning = fmt.Sprintf("paging disable %q failed: %v", plan.PagingCommand, err)
		}
	}

	var transcript strings.Builder
	for i, command := range plan.Commands {
		if i > 0 {
			transcript.WriteString(commandSeparator(command))
			if plan.CommandPause > 0 {
				select {
				case <-time.After(plan.CommandPause):
				case <-ctx.Done():
					result.Output = transcript.String()
					return &result, wrapCollectErr(target.Host, ctx.Err(), ctx)
				}
			}
		}

		output, err := session.Run(ctx, command)
		transcript.WriteString(output)
		if err != nil {
			result.Output = transcript.String()
			result.Duration = time.Since(start)
			return &result, wrapCollectErr(target.Host, err, ctx)
		}
	}

	result.Output = transcript.String()
	result.Duration = time.Since(start)
	return &result, nil
}

// commandSeparator delimits follow-up command transcripts.
func commandSeparator(command string) string {
	return "\n\n=== " + command + " ===\n"
}

// wrapCollectErr prefers the timeout classification when the wall clock
// expired, whatever error the transport surfaced while dying.
func wrapCollectErr(host string, err error, ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return types.NewDeviceError(types.ErrKindTimeout, "collect", host, context.DeadlineExceeded)
	}
	var devErr *types.DeviceError
	if errors.As(err, &devErr) {
		return err
	}
	return types.NewDeviceError(types.KindOf(err), "collect", host, err)
}
