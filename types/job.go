package types

import (
	"fmt"
	"regexp"
	"time"
)

// MaxWorkersCeiling caps per-job device concurrency regardless of what the
// job descriptor asks for.
const MaxWorkersCeiling = 64

// DefaultFilenamePattern is used when a job's output policy leaves the
// capture filename unset.
const DefaultFilenamePattern = "{device_name}_{timestamp}.txt"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Job is the declarative unit of collection: what to run, where to run it,
// and how to validate and store the result.
type Job struct {
	// ID is the numeric row id in the jobs table; zero for ad-hoc
	// file-defined jobs.
	ID int64

	// Slug is the stable ASCII-kebab identifier, unique across jobs.
	Slug string

	// CaptureKind names what is being collected (e.g. "arp", "version",
	// "mac-table"). It keys capture metadata rows.
	CaptureKind string

	// Vendor is an optional vendor hint used by the device filter.
	Vendor string

	// Command is the primary command sent to each device.
	Command string

	// ExtraCommands are optional follow-up commands run in order after
	// Command on the same session.
	ExtraCommands []string

	// DisablePaging optionally overrides the platform's paging-disable
	// prelude. Errors from the prelude are warnings, never fatal.
	DisablePaging string

	Filter     DeviceFilter
	Validation ValidationPolicy
	Execution  ExecutionPolicy
	Output     OutputPolicy

	Enabled     bool
	Description string
}

// DeviceFilter selects devices from the inventory read model.
// Zero-valued fields do not constrain the result.
type DeviceFilter struct {
	// Vendor is a case-insensitive substring match against the
	// manufacturer name linked through the platform.
	Vendor string

	SiteID     int64
	RoleID     int64
	PlatformID int64

	// NameRegex matches device names. Anchors are honored when present;
	// otherwise it behaves as an unanchored search.
	NameRegex string

	// Status defaults to "active" when empty.
	Status string

	// Limit caps the device count; zero means unlimited.
	Limit int
}

// IsZero reports whether the filter constrains nothing beyond status.
func (f DeviceFilter) IsZero() bool {
	return f.Vendor == "" && f.SiteID == 0 && f.RoleID == 0 &&
		f.PlatformID == 0 && f.NameRegex == ""
}

// EffectiveStatus returns the status constraint, defaulting to "active".
func (f DeviceFilter) EffectiveStatus() string {
	if f.Status == "" {
		return "active"
	}
	return f.Status
}

// ValidationPolicy controls template scoring of device output.
type ValidationPolicy struct {
	Enabled bool

	// TemplateFilter is the underscore-delimited selector, e.g.
	// "cisco_ios_show_ip_arp". Required when Enabled.
	TemplateFilter string

	// MinScore is the passing threshold on the 0-100 scale.
	MinScore float64

	// SaveOnFail writes the capture file even when validation fails.
	// Such devices are still counted as skipped, not succeeded.
	SaveOnFail bool
}

// ExecutionPolicy bounds per-job resource use.
type ExecutionPolicy struct {
	// MaxWorkers is the device-level concurrency bound, clamped to
	// MaxWorkersCeiling. Values below 1 are a config error.
	MaxWorkers int

	// Timeout is the per-device wall clock for the whole command
	// sequence, connect included.
	Timeout time.Duration

	// CommandPause is an optional sleep between consecutive commands.
	CommandPause time.Duration
}

// EffectiveWorkers returns MaxWorkers clamped to the ceiling.
func (p ExecutionPolicy) EffectiveWorkers() int {
	if p.MaxWorkers > MaxWorkersCeiling {
		return MaxWorkersCeiling
	}
	return p.MaxWorkers
}

// OutputPolicy describes where capture files land.
type OutputPolicy struct {
	// Subdir is the per-job directory under the collection root.
	Subdir string

	// FilenamePattern is expanded per device. Recognized variables:
	// {device_name}, {device_id}, {timestamp}. Unknown variables pass
	// through literally. Defaults to DefaultFilenamePattern.
	FilenamePattern string
}

// Commands returns the full ordered command list, prelude excluded.
func (j *Job) Commands() []string {
	cmds := make([]string, 0, 1+len(j.ExtraCommands))
	cmds = append(cmds, j.Command)
	cmds = append(cmds, j.ExtraCommands...)
	return cmds
}

// Validate checks the structural invariants of a job descriptor.
// Violations are configuration errors that abort the run before any
// device is contacted.
func (j *Job) Validate() error {
	if j.Slug == "" {
		return fmt.Errorf("job slug is required")
	}
	if !slugPattern.MatchString(j.Slug) {
		return fmt.Errorf("job slug %q is not kebab-case", j.Slug)
	}
	if j.Command == "" {
		return fmt.Errorf("job %s: command is required", j.Slug)
	}
	if j.Execution.MaxWorkers < 1 {
		return fmt.Errorf("job %s: max_workers must be >= 1, got %d", j.Slug, j.Execution.MaxWorkers)
	}
	if j.Execution.Timeout <= 0 {
		return fmt.Errorf("job %s: timeout must be positive, got %s", j.Slug, j.Execution.Timeout)
	}
	if j.Validation.Enabled && j.Validation.TemplateFilter == "" {
		return fmt.Errorf("job %s: validation enabled without template_filter", j.Slug)
	}
	if j.Validation.MinScore < 0 || j.Validation.MinScore > 100 {
		return fmt.Errorf("job %s: min_score must be in [0,100], got %g", j.Slug, j.Validation.MinScore)
	}
	if j.Filter.NameRegex != "" {
		if _, err := regexp.Compile(j.Filter.NameRegex); err != nil {
			return fmt.Errorf("job %s: bad name_regex: %w", j.Slug, err)
		}
	}
	return nil
}
