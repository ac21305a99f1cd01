package types_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/velocitylabs/vcollect/types"
)

func TestKindOf_DeviceError(t *testing.T) {
	inner := errors.New("connection refused")
	err := types.NewDeviceError(types.ErrKindTransport, "connect", "10.0.0.1", inner)

	if got := types.KindOf(err); got != types.ErrKindTransport {
		t.Errorf("expected transport_error, got %s", got)
	}
	if !errors.Is(err, inner) {
		t.Error("underlying error should survive in the chain")
	}
}

func TestKindOf_WrappedDeviceError(t *testing.T) {
	err := fmt.Errorf("device sw-core-01: %w",
		types.NewDeviceError(types.ErrKindAuthFailed, "connect", "10.0.0.1", errors.New("auth failed")))

	if got := types.KindOf(err); got != types.ErrKindAuthFailed {
		t.Errorf("expected auth_failed through wrapping, got %s", got)
	}
}

func TestKindOf_Sentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"no credential", types.ErrNoCredential, types.ErrKindNoCredential},
		{"vault locked", types.ErrVaultLocked, types.ErrKindVaultLocked},
		{"bad password", types.ErrVaultBadPassword, types.ErrKindVaultLocked},
		{"empty inventory", types.ErrNoMatchingDevices, types.ErrKindInventoryEmpty},
		{"deadline", context.DeadlineExceeded, types.ErrKindTimeout},
		{"wrapped sentinel", fmt.Errorf("resolve: %w", types.ErrNoCredential), types.ErrKindNoCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"refused", errors.New("dial tcp 10.0.0.1:22: connect: connection refused"), types.ErrKindTransport},
		{"dns", errors.New("dial tcp: lookup sw-x: no such host"), types.ErrKindTransport},
		{"reset", errors.New("read tcp: connection reset by peer"), types.ErrKindTransport},
		{"auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), types.ErrKindAuthFailed},
		{"timeout", errors.New("i/o timeout"), types.ErrKindTimeout},
		{"deadline text", errors.New("context deadline exceeded"), types.ErrKindTimeout},
		{"unclassified", errors.New("prompt never returned"), types.ErrKindCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := types.ClassifyTransport(tt.err); got != tt.want {
				t.Errorf("ClassifyTransport(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableInDiscovery(t *testing.T) {
	if !types.RetryableInDiscovery(types.ErrKindAuthFailed) {
		t.Error("auth failures should move on to the next candidate")
	}
	for _, kind := range []types.ErrorKind{
		types.ErrKindTimeout, types.ErrKindTransport, types.ErrKindCommand,
	} {
		if types.RetryableInDiscovery(kind) {
			t.Errorf("%s should abort remaining candidates", kind)
		}
	}
}
