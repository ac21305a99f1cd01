// Package discovery probes devices with vault credentials to find one
// that authenticates, then pins the winner on the device record. Probes
// are connect-only; no data command ever runs on the device.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/velocitylabs/vcollect/inventory"
	"github.com/velocitylabs/vcollect/log"
	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
	"github.com/velocitylabs/vcollect/vault"
)

// DeviceResult is the probe outcome for one device.
type DeviceResult struct {
	Device types.Device

	// CredentialID and CredentialName identify the pinned credential on
	// success.
	CredentialID   int64
	CredentialName string

	// Skipped means the device was not probed because its last
	// successful test falls inside the skip window.
	Skipped bool

	// Attempts counts credentials tried.
	Attempts int

	// Err is the terminal failure: the last auth rejection when every
	// candidate was refused, or the transport error that aborted the
	// device.
	Err error
}

// Success reports whether a credential was pinned.
func (r *DeviceResult) Success() bool {
	return !r.Skipped && r.Err == nil
}

// Summary aggregates a discovery sweep.
type Summary struct {
	Tested  int
	Pinned  int
	Failed  int
	Skipped int

	// Results holds per-device outcomes in input order.
	Results []DeviceResult
}

// Engine sweeps devices for working credentials.
type Engine struct {
	inv    *inventory.Store
	vault  *vault.Vault
	dialer sshx.Dialer
	logger *log.Logger

	// MaxInFlight bounds concurrent probe sessions. Values below 1 run
	// probes one at a time.
	MaxInFlight int

	// SkipWindow skips devices whose last successful credential test is
	// newer than this. Zero probes everything.
	SkipWindow time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a discovery engine. The vault must be unlocked
// before Run is called.
func NewEngine(inv *inventory.Store, v *vault.Vault, dialer sshx.Dialer, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		inv:         inv,
		vault:       v,
		dialer:      dialer,
		logger:      logger,
		MaxInFlight: 4,
		now:         time.Now,
	}
}

// Run probes every eligible device and returns the sweep summary.
// Credential test stamps are written to the inventory as each device
// finishes, so an interrupted sweep keeps its partial progress.
func (e *Engine) Run(ctx context.Context, devices []types.Device) (Summary, error) {
	candidates, err := e.vault.Credentials()
	if err != nil {
		return Summary{}, err
	}
	if len(candidates) == 0 {
		return Summary{}, types.ErrNoCredential
	}

	inFlight := e.MaxInFlight
	if inFlight < 1 {
		inFlight = 1
	}
	sem := make(chan struct{}, inFlight)

	results := make([]DeviceResult, len(devices))
	var wg sync.WaitGroup
	for i := range devices {
		device := devices[i]
		if e.skippable(device) {
			results[i] = DeviceResult{Device: device, Skipped: true}
			continue
		}

		wg.Add(1)
		go func(slot *DeviceResult) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				*slot = DeviceResult{Device: device, Err: ctx.Err()}
				return
			}
			*slot = e.probeDevice(ctx, device, candidates)
		}(&results[i])
	}
	wg.Wait()

	summary := Summary{Results: results}
	for i := range results {
		r := &results[i]
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Err == nil:
			summary.Tested++
			summary.Pinned++
		default:
			summary.Tested++
			summary.Failed++
		}
	}
	return summary, nil
}

// skippable reports whether the device's last successful test is fresh
// enough to leave alone. Failed tests are always retried.
func (e *Engine) skippable(device types.Device) bool {
	if e.SkipWindow <= 0 || device.LastCredTestResult != "success" {
		return false
	}
	return e.now().Sub(device.LastCredTestAt) < e.SkipWindow
}

// probeDevice tries candidates in order until one authenticates. An
// authentication rejection moves to the next candidate; any other
// failure aborts the device, since retrying against an unreachable host
// only risks lockouts.
func (e *Engine) probeDevice(ctx context.Context, device types.Device, candidates []*vault.Credential) DeviceResult {
	result := DeviceResult{Device: device}

	for _, cred := range orderCandidates(device, candidates) {
		result.Attempts++
		err := sshx.Probe(ctx, e.dialer, sshx.Target{
			Host:   device.PrimaryAddress,
			Driver: device.Platform.Driver,
			Auth: sshx.Auth{
				Username:   cred.Username,
				Password:   cred.Password,
				PrivateKey: cred.PrivateKey,
				Passphrase: cred.Passphrase,
			},
		})
		if err == nil {
			result.CredentialID = cred.ID
			result.CredentialName = cred.Name
			result.Err = nil
			e.stamp(ctx, device, cred.ID, "success")
			e.logger.Info("credential pinned", map[string]any{
				"device":     device.Name,
				"credential": cred.Name,
				"attempts":   result.Attempts,
			})
			return result
		}

		result.Err = err
		kind := types.KindOf(err)
		e.logger.Debug("credential probe failed", map[string]any{
			"device":     device.Name,
			"credential": cred.Name,
			"kind":       string(kind),
		})
		if !types.RetryableInDiscovery(kind) {
			break
		}
	}

	e.stamp(ctx, device, 0, "failed")
	return result
}

// orderCandidates puts the device's pinned credential first, then the
// store default, then the rest by id. A stale pin is still the best
// first guess.
func orderCandidates(device types.Device, candidates []*vault.Credential) []*vault.Credential {
	ordered := make([]*vault.Credential, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return candidateRank(device, ordered[i]) < candidateRank(device, ordered[j])
	})
	return ordered
}

func candidateRank(device types.Device, cred *vault.Credential) int {
	switch {
	case device.PinnedCredentialID != 0 && cred.ID == device.PinnedCredentialID:
		return 0
	case cred.IsDefault:
		return 1
	default:
		return 2
	}
}

// stamp records the test outcome; stamp failures are logged, not fatal,
// because the probe result itself is still valid.
func (e *Engine) stamp(ctx context.Context, device types.Device, credentialID int64, result string) {
	if err := e.inv.RecordCredentialTest(ctx, device.ID, credentialID, result, e.now()); err != nil {
		e.logger.Warn("credential test stamp failed", map[string]any{
			"device": device.Name,
			"error":  err.Error(),
		})
	}
}
