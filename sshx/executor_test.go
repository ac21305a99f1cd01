package sshx_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/velocitylabs/vcollect/sshx"
	"github.com/velocitylabs/vcollect/types"
)

func arpTarget() sshx.Target {
	return sshx.Target{
		Host:   "10.1.0.1",
		Driver: "cisco_ios",
		Auth:   sshx.Auth{Username: "admin", Password: "x"},
	}
}

func TestCollect_CommandOrder(t *testing.T) {
	dialer := sshx.NewStubDialer()
	session := &sshx.StubSession{Outputs: map[string]string{
		"terminal length 0": "sw#",
		"show ip arp":       "show ip arp\nInternet 10.1.0.1\nsw#",
		"show ip arp vrf m": "show ip arp vrf m\nInternet 10.9.0.1\nsw#",
	}}
	dialer.Sessions["10.1.0.1"] = session

	exec := sshx.NewExecutor(dialer)
	result, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		PagingCommand: "terminal length 0",
		Commands:      []string{"show ip arp", "show ip arp vrf m"},
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"terminal length 0", "show ip arp", "show ip arp vrf m"}
	got := session.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if !strings.Contains(result.Output, "=== show ip arp vrf m ===") {
		t.Error("follow-up command transcript missing separator")
	}
	if !session.Closed {
		t.Error("session should be closed after collect")
	}
}

func TestCollect_PagingFailureIsWarning(t *testing.T) {
	dialer := sshx.NewStubDialer()
	session := &sshx.StubSession{
		Outputs: map[string]string{"show version": "show version\nIOS 15.2\nsw#"},
		RunErrs: map[string]error{"no page": errors.New("invalid input")},
	}
	dialer.Sessions["10.1.0.1"] = session

	exec := sshx.NewExecutor(dialer)
	result, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		PagingCommand: "no page",
		Commands:      []string{"show version"},
		Timeout:       5 * time.Second,
	})
	if err != nil {
		t.Fatalf("paging failure must not fail the device: %v", err)
	}
	if result.Warning == "" {
		t.Error("expected a warning for the failed prelude")
	}
	if !strings.Contains(result.Output, "IOS 15.2") {
		t.Error("collection should proceed after prelude failure")
	}
}

func TestCollect_Timeout(t *testing.T) {
	dialer := sshx.NewStubDialer()
	dialer.Sessions["10.1.0.1"] = &sshx.StubSession{RunDelay: time.Second}

	exec := sshx.NewExecutor(dialer)
	_, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		Commands: []string{"show ip arp"},
		Timeout:  50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if kind := types.KindOf(err); kind != types.ErrKindTimeout {
		t.Errorf("expected timeout kind, got %s (%v)", kind, err)
	}
}

func TestCollect_SlowDialCountsAgainstWallClock(t *testing.T) {
	dialer := sshx.NewStubDialer()
	dialer.DialDelay = time.Second
	dialer.Sessions["10.1.0.1"] = &sshx.StubSession{}

	exec := sshx.NewExecutor(dialer)
	start := time.Now()
	_, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		Commands: []string{"show ip arp"},
		Timeout:  50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout during dial")
	}
	if types.KindOf(err) != types.ErrKindTimeout {
		t.Errorf("expected timeout kind, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("dial was not bounded by the wall clock: %s", elapsed)
	}
}

func TestCollect_ZeroTimeoutIsConfigError(t *testing.T) {
	exec := sshx.NewExecutor(sshx.NewStubDialer())
	_, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		Commands: []string{"show ip arp"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if types.KindOf(err) != types.ErrKindConfig {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestCollect_TransportErrorClassified(t *testing.T) {
	dialer := sshx.NewStubDialer()
	dialer.DialErrs["10.1.0.1"] = errors.New("dial tcp 10.1.0.1:22: connect: connection refused")

	exec := sshx.NewExecutor(dialer)
	_, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		Commands: []string{"show ip arp"},
		Timeout:  time.Second,
	})
	if types.KindOf(err) != types.ErrKindTransport {
		t.Errorf("expected transport kind, got %v", err)
	}
}

func TestCollect_AuthErrorClassified(t *testing.T) {
	dialer := sshx.NewStubDialer()
	dialer.DialErrs["10.1.0.1"] = errors.New("ssh: handshake failed: ssh: unable to authenticate")

	exec := sshx.NewExecutor(dialer)
	_, err := exec.Collect(context.Background(), arpTarget(), sshx.Plan{
		Commands: []string{"show ip arp"},
		Timeout:  time.Second,
	})
	if types.KindOf(err) != types.ErrKindAuthFailed {
		t.Errorf("expected auth kind, got %v", err)
	}
}

func TestProbe_ConnectOnly(t *testing.T) {
	dialer := sshx.NewStubDialer()
	session := &sshx.StubSession{}
	dialer.Sessions["10.1.0.1"] = session

	if err := sshx.Probe(context.Background(), dialer, arpTarget()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if len(session.Commands()) != 0 {
		t.Errorf("probe must not run data commands, ran %v", session.Commands())
	}
	if !session.Closed {
		t.Error("probe should close the session")
	}
}
