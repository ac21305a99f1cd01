// Package metrics accumulates per-run collection counters. The
// Collector is a leaf with no internal dependencies; the run controller
// records into it and renders a Snapshot in the run summary.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of the run's counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Device lifecycle
	DevicesAttempted int64
	DevicesSucceeded int64
	DevicesFailed    int64
	DevicesSkipped   int64

	// FailuresByKind buckets failed devices by error taxonomy kind.
	FailuresByKind map[string]int64

	// Captures
	CapturesWritten int64
	BytesWritten    int64

	// Validation
	ValidationsPassed int64
	ValidationsFailed int64

	// DeviceTime is the summed per-device wall time; divides by
	// DevicesAttempted for a mean.
	DeviceTime time.Duration

	// Dimensions, set at construction.
	RunID   string
	JobSlug string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All record methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	devicesAttempted int64
	devicesSucceeded int64
	devicesFailed    int64
	devicesSkipped   int64
	failuresByKind   map[string]int64

	capturesWritten int64
	bytesWritten    int64

	validationsPassed int64
	validationsFailed int64

	deviceTime time.Duration

	runID   string
	jobSlug string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(runID, jobSlug string) *Collector {
	return &Collector{
		failuresByKind: make(map[string]int64),
		runID:          runID,
		jobSlug:        jobSlug,
	}
}

// IncAttempted records a device handed to a worker.
func (c *Collector) IncAttempted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.devicesAttempted++
	c.mu.Unlock()
}

// IncSucceeded records a device that completed its command sequence.
func (c *Collector) IncSucceeded(elapsed time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.devicesSucceeded++
	c.deviceTime += elapsed
	c.mu.Unlock()
}

// IncFailed records a failed device under its taxonomy kind.
func (c *Collector) IncFailed(kind string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.devicesFailed++
	c.failuresByKind[kind]++
	c.deviceTime += elapsed
	c.mu.Unlock()
}

// IncSkipped records a device that was never scheduled or whose capture
// was retained despite a validation failure.
func (c *Collector) IncSkipped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.devicesSkipped++
	c.mu.Unlock()
}

// AddCapture records one persisted transcript of the given size.
func (c *Collector) AddCapture(bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.capturesWritten++
	c.bytesWritten += bytes
	c.mu.Unlock()
}

// IncValidationPassed records a transcript that met the job's min score.
func (c *Collector) IncValidationPassed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsPassed++
	c.mu.Unlock()
}

// IncValidationFailed records a transcript below the min score.
func (c *Collector) IncValidationFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.validationsFailed++
	c.mu.Unlock()
}

// Snapshot returns an immutable view; the Collector can continue to be
// mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		byKind[k] = v
	}

	return Snapshot{
		DevicesAttempted: c.devicesAttempted,
		DevicesSucceeded: c.devicesSucceeded,
		DevicesFailed:    c.devicesFailed,
		DevicesSkipped:   c.devicesSkipped,
		FailuresByKind:   byKind,

		CapturesWritten: c.capturesWritten,
		BytesWritten:    c.bytesWritten,

		ValidationsPassed: c.validationsPassed,
		ValidationsFailed: c.validationsFailed,

		DeviceTime: c.deviceTime,

		RunID:   c.runID,
		JobSlug: c.jobSlug,
	}
}
