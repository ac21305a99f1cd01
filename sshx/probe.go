package sshx

import (
	"context"

	"github.com/velocitylabs/vcollect/iox"
)

// Probe authenticates against the target and reaches a prompt, then
// disconnects without running any data command. Discovery uses this to
// test candidate credentials without touching device state.
func Probe(ctx context.Context, dialer Dialer, target Target) error {
	session, err := dialer.Dial(ctx, target)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(session)
	return nil
}
