package sshx

import "context"

// Auth carries the decrypted credential material for one connection.
// Instances are worker-local and short-lived.
type Auth struct {
	Username   string
	Password   string
	PrivateKey string
	Passphrase string
}

// Target identifies one device endpoint.
type Target struct {
	// Host is the management address.
	Host string
	// Port defaults to 22 when zero.
	Port int
	// Driver selects the session profile.
	Driver string
	Auth   Auth
}

// Session is an interactive prompt-driven command channel to one device.
// Implementations are not safe for concurrent use; each worker owns its
// session exclusively.
type Session interface {
	// Run sends a command and reads output until the prompt returns or
	// ctx is done. The returned output excludes nothing; callers clean
	// echoes and prompts separately.
	Run(ctx context.Context, command string) (string, error)

	// Close tears down the channel. Safe to call more than once and
	// from a goroutine other than the one calling Run; this is how
	// hard-cancel interrupts a stuck read.
	Close() error
}

// Dialer opens authenticated sessions. The production implementation is
// Client; tests substitute scripted fakes.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}
