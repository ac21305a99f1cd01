package sshx

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubDialer scripts per-host sessions for testing. Hosts without an
// entry fail to dial with DefaultErr or succeed with an empty session.
type StubDialer struct {
	mu sync.Mutex

	// Sessions maps host to its scripted session.
	Sessions map[string]*StubSession

	// DialErrs maps host to a dial failure.
	DialErrs map[string]error

	// DialDelay simulates slow connects; honors ctx cancellation.
	DialDelay time.Duration

	// Dialed records targets in dial order.
	Dialed []Target
}

// NewStubDialer creates an empty stub dialer.
func NewStubDialer() *StubDialer {
	return &StubDialer{
		Sessions: make(map[string]*StubSession),
		DialErrs: make(map[string]error),
	}
}

// Dial implements Dialer.
func (d *StubDialer) Dial(ctx context.Context, target Target) (Session, error) {
	d.mu.Lock()
	d.Dialed = append(d.Dialed, target)
	delay := d.DialDelay
	err := d.DialErrs[target.Host]
	session := d.Sessions[target.Host]
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &StubSession{}
	}
	return session, nil
}

// DialCount returns how many dials were attempted for host.
func (d *StubDialer) DialCount(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.Dialed {
		if t.Host == host {
			n++
		}
	}
	return n
}

// StubSession answers Run calls from a script.
type StubSession struct {
	mu sync.Mutex

	// Outputs maps command to its transcript.
	Outputs map[string]string

	// RunErrs maps command to a failure.
	RunErrs map[string]error

	// RunDelay simulates slow commands; honors ctx cancellation.
	RunDelay time.Duration

	// Ran records commands in execution order.
	Ran []string

	Closed bool
}

// Run implements Session.
func (s *StubSession) Run(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	s.Ran = append(s.Ran, command)
	delay := s.RunDelay
	err := s.RunErrs[command]
	output, ok := s.Outputs[command]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		output = fmt.Sprintf("%s\nstub output\nstub#", command)
	}
	return output, nil
}

// Close implements Session.
func (s *StubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Commands returns the commands run so far.
func (s *StubSession) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Ran))
	copy(out, s.Ran)
	return out
}
