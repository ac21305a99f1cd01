// Package types defines the core domain model: jobs, devices, outcomes,
// run results, and the error taxonomy shared by every subsystem.
package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failure for reporting and retry policy decisions.
type ErrorKind string

const (
	// ErrKindConfig covers job parse failures, bad filters, and bad
	// filename patterns. Fatal at job start; no devices are contacted.
	ErrKindConfig ErrorKind = "config_error"

	// ErrKindInventoryEmpty is raised when a device filter matches nothing.
	ErrKindInventoryEmpty ErrorKind = "inventory_empty"

	// ErrKindNoCredential means no credential could be resolved for a device.
	ErrKindNoCredential ErrorKind = "no_credential"

	// ErrKindAuthFailed is an SSH authentication rejection.
	ErrKindAuthFailed ErrorKind = "auth_failed"

	// ErrKindTimeout means the per-device wall clock was exceeded.
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindTransport covers connection refused, DNS failures, resets,
	// and unreachable hosts.
	ErrKindTransport ErrorKind = "transport_error"

	// ErrKindCommand is a non-recoverable prompt or command failure on an
	// otherwise healthy session.
	ErrKindCommand ErrorKind = "command_error"

	// ErrKindValidation means the best template score fell below the
	// job's minimum, or no template matched at all.
	ErrKindValidation ErrorKind = "validation_failed"

	// ErrKindPersistence covers capture write and history update failures.
	ErrKindPersistence ErrorKind = "persistence_error"

	// ErrKindVaultLocked means decrypted material was required before unlock.
	ErrKindVaultLocked ErrorKind = "vault_locked"
)

// Sentinel errors for job-level and store-level failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNoMatchingDevices indicates the resolver produced zero devices
	// for a non-empty filter.
	ErrNoMatchingDevices = errors.New("no matching devices")

	// ErrNoCredential indicates no credential is available for a device.
	ErrNoCredential = errors.New("no credential available")

	// ErrVaultLocked indicates the secret store has not been unlocked.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrVaultBadPassword indicates an unlock attempt with a wrong password.
	ErrVaultBadPassword = errors.New("invalid vault password")
)

// DeviceError wraps a per-device failure with its taxonomy kind.
// The underlying error stays in the chain for errors.Is/As inspection.
type DeviceError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Op is the operation that failed (e.g. "connect", "exec", "save").
	Op string
	// Host is the device address or name involved.
	Host string
	// Err is the underlying error.
	Err error
}

func (e *DeviceError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Host, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for chain traversal.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceError creates a classified per-device error.
func NewDeviceError(kind ErrorKind, op, host string, err error) *DeviceError {
	return &DeviceError{Kind: kind, Op: op, Host: host, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain.
// Unclassified errors map to ErrKindCommand, the most conservative
// per-device bucket.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Kind
	}

	switch {
	case errors.Is(err, ErrNoCredential):
		return ErrKindNoCredential
	case errors.Is(err, ErrVaultLocked), errors.Is(err, ErrVaultBadPassword):
		return ErrKindVaultLocked
	case errors.Is(err, ErrNoMatchingDevices):
		return ErrKindInventoryEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	}

	return ClassifyTransport(err)
}

// ClassifyTransport maps a raw network or SSH error into the taxonomy by
// message patterns. Used when the transport layer surfaces untyped errors.
func ClassifyTransport(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrKindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "unable to authenticate", "auth fail", "permission denied",
		"password", "handshake failed: ssh", "no supported methods remain"):
		return ErrKindAuthFailed
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrKindTimeout
	case containsAny(msg, "connection refused", "no route to host", "network is unreachable",
		"no such host", "connection reset", "broken pipe", "dial tcp", "eof"):
		return ErrKindTransport
	default:
		return ErrKindCommand
	}
}

// RetryableInDiscovery reports whether discovery should try the next
// candidate credential after this failure. Only authentication rejections
// are worth retrying with a different secret; anything else means the
// device itself is unreachable and further attempts risk lockouts.
func RetryableInDiscovery(kind ErrorKind) bool {
	return kind == ErrKindAuthFailed
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
