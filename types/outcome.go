package types

import "time"

// ValidationStatus is the outcome of template scoring for one device.
type ValidationStatus string

const (
	// ValidationPassed means the best template met the job's min score.
	ValidationPassed ValidationStatus = "passed"
	// ValidationFailed means the best score fell below the minimum.
	ValidationFailed ValidationStatus = "failed"
	// ValidationNoTemplate means no candidate template matched the filter.
	ValidationNoTemplate ValidationStatus = "no-template"
	// ValidationSkipped means the job ran with validation disabled.
	ValidationSkipped ValidationStatus = "skipped"
)

// DeviceOutcome is the per-device result emitted by the execution pool.
type DeviceOutcome struct {
	DeviceID   int64
	DeviceName string
	Host       string

	// Success means the command sequence completed and, when required,
	// the capture was validated and persisted.
	Success bool

	// Skipped marks devices that were never scheduled (cancellation) or
	// whose output failed validation. Skipped and Success are exclusive.
	Skipped bool

	Duration time.Duration

	// Output is the cleaned transcript; may be empty on failure.
	Output string

	// ErrKind and ErrMessage are set when the device failed or skipped
	// with a reason.
	ErrKind    ErrorKind
	ErrMessage string

	// CredentialID and CredentialName record which secret was used.
	CredentialID   int64
	CredentialName string

	// Warning carries non-fatal notes, e.g. a paging prelude failure.
	Warning string

	// Capture fields are populated when a file was written.
	CapturePath  string
	CaptureBytes int64

	// Validation fields are populated when the job validates output.
	Template         string
	Score            float64
	ValidationStatus ValidationStatus
}

// Failed reports whether the device counts toward the run's failed bucket.
func (o *DeviceOutcome) Failed() bool {
	return !o.Success && !o.Skipped
}

// ProgressEvent is published after each device finishes, in completion
// order. Seq is 1-based and assigned as outcomes arrive, not as devices
// start.
type ProgressEvent struct {
	Seq     int
	Total   int
	Outcome DeviceOutcome
}
