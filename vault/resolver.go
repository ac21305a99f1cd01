package vault

import (
	"fmt"

	"github.com/velocitylabs/vcollect/types"
)

// Resolver picks the effective credential for a device.
//
// The chain, in order:
//  1. The device's pinned credential, if its last test succeeded.
//  2. The run-wide override, if the caller supplied one.
//  3. The store default.
//  4. Failure with ErrNoCredential.
type Resolver struct {
	vault *Vault

	// OverrideID is the run-wide credential override; zero means none.
	OverrideID int64
}

// NewResolver creates a resolver over an unlocked vault.
func NewResolver(v *Vault, overrideID int64) *Resolver {
	return &Resolver{vault: v, OverrideID: overrideID}
}

// Resolve returns the credential to use for the device.
//
// A pinned credential that has vanished from the store falls through to
// the rest of the chain rather than failing the device; the pin is stale
// inventory state, not operator intent.
func (r *Resolver) Resolve(device *types.Device) (*Credential, error) {
	if r.vault.IsLocked() {
		return nil, types.ErrVaultLocked
	}

	if device.HasWorkingPin() {
		if cred, err := r.vault.CredentialByID(device.PinnedCredentialID); err == nil {
			return cred, nil
		}
	}

	if r.OverrideID != 0 {
		cred, err := r.vault.CredentialByID(r.OverrideID)
		if err != nil {
			return nil, fmt.Errorf("run override credential %d: %w", r.OverrideID, err)
		}
		return cred, nil
	}

	cred, err := r.vault.DefaultCredential()
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", device.Name, types.ErrNoCredential)
	}
	return cred, nil
}
