package statemachine

import (
	"testing"
	"time"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
)

func testTiming() corecfg.TimingProfile {
	return corecfg.TimingProfile{
		DiscoveryTimeout:    2500 * time.Millisecond,
		DirectDialBudget:    1500 * time.Millisecond,
		PunchBudget:         2200 * time.Millisecond,
		RelayDialTimeout:    2500 * time.Millisecond,
		HandshakeTimeout:    1200 * time.Millisecond,
		PingInterval:        1000 * time.Millisecond,
		PathLostThreshold:   3,
		ReconnectBudget:     15000 * time.Millisecond,
		ReconnectBackoffMin: 200 * time.Millisecond,
		ReconnectBackoffMax: 2000 * time.Millisecond,
	}
}

func TestHappyPathToActive(t *testing.T) {
	m := New(testTiming())
	steps := []Trigger{StartConnect, CandidatesFound, DirectConnected, HandshakeOk}
	wantStates := []State{Discovering, DialingDirect, SecureHandshake, Active}

	for i, trig := range steps {
		res, err := m.Apply(trig)
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, trig, err)
		}
		if res.State != wantStates[i] {
			t.Fatalf("step %d: state = %s, want %s", i, res.State, wantStates[i])
		}
	}
}

func TestDialRace_DirectFailsThenPunchThenRelay(t *testing.T) {
	m := New(testTiming())
	mustApply(t, m, StartConnect)
	mustApply(t, m, CandidatesFound)
	mustApply(t, m, DirectNoSuccess)
	if m.State() != HolePunching {
		t.Fatalf("state = %s, want HolePunching", m.State())
	}
	mustApply(t, m, PunchTimeout)
	if m.State() != RelayDialing {
		t.Fatalf("state = %s, want RelayDialing", m.State())
	}
	mustApply(t, m, RelayConnected)
	if m.State() != SecureHandshake {
		t.Fatalf("state = %s, want SecureHandshake", m.State())
	}
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	m := New(testTiming())
	mustApply(t, m, StartConnect)

	_, err := m.Apply(HandshakeOk)
	if err == nil {
		t.Fatal("expected InvalidTransitionError")
	}
	ite, ok := err.(*InvalidTransitionError)
	if !ok {
		t.Fatalf("err type = %T, want *InvalidTransitionError", err)
	}
	if ite.From != Discovering || ite.Trigger != HandshakeOk {
		t.Fatalf("unexpected error fields: %+v", ite)
	}
	if m.State() != Discovering {
		t.Fatalf("state mutated on invalid transition: %s", m.State())
	}
}

func TestReconnectBudget_MonotonicThenResetOnHandshakeOk(t *testing.T) {
	m := New(testTiming())
	mustApply(t, m, StartConnect)
	mustApply(t, m, CandidatesFound)
	mustApply(t, m, DirectConnected)
	mustApply(t, m, HandshakeOk)
	if m.State() != Active {
		t.Fatalf("state = %s, want Active", m.State())
	}

	res, err := m.Apply(PathLost)
	if err != nil {
		t.Fatal(err)
	}
	if res.Timer.Kind != TimerReconnectBackoff || res.Timer.Duration != 200 {
		t.Fatalf("first backoff = %+v, want 200ms", res.Timer)
	}
	if m.ReconnectAttempts() != 1 {
		t.Fatalf("attempts = %d, want 1", m.ReconnectAttempts())
	}

	res, err = m.Apply(RetryBudgetAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != DialingDirect {
		t.Fatalf("state = %s, want DialingDirect", res.State)
	}

	mustApply(t, m, DirectConnected)
	res, err = m.Apply(HandshakeOk)
	if err != nil {
		t.Fatal(err)
	}
	if !res.BudgetReset {
		t.Fatal("expected BudgetReset=true on successful handshake")
	}
	if m.ReconnectAttempts() != 0 || m.ReconnectElapsedMS() != 0 {
		t.Fatalf("reconnect counters not reset: attempts=%d elapsed=%d", m.ReconnectAttempts(), m.ReconnectElapsedMS())
	}
}

func TestReconnectBudget_ExhaustionReachesFailedBudget(t *testing.T) {
	// A budget smaller than a single backoff charge means the very first
	// PathLost already exhausts it (spec §4.5 "has_budget := elapsed <
	// budget_ms").
	timing := testTiming()
	timing.ReconnectBudget = 100 * time.Millisecond
	timing.ReconnectBackoffMin = 200 * time.Millisecond

	m := New(timing)
	mustApply(t, m, StartConnect)
	mustApply(t, m, CandidatesFound)
	mustApply(t, m, DirectConnected)
	mustApply(t, m, HandshakeOk)

	res, err := m.Apply(PathLost)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Reconnecting {
		t.Fatalf("state = %s, want Reconnecting", res.State)
	}
	if m.ReconnectElapsedMS() < timing.ReconnectBudget.Milliseconds() {
		t.Fatalf("elapsed = %d, want >= budget %d", m.ReconnectElapsedMS(), timing.ReconnectBudget.Milliseconds())
	}

	res, err = m.Apply(RetryBudgetAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Failed || res.FailReason != FailReasonBudget {
		t.Fatalf("state = %s reason = %v, want Failed(Budget)", res.State, res.FailReason)
	}
}

func TestReconnectBudget_ExplicitExhaustedTrigger(t *testing.T) {
	m := New(testTiming())
	mustApply(t, m, StartConnect)
	mustApply(t, m, CandidatesFound)
	mustApply(t, m, DirectConnected)
	mustApply(t, m, HandshakeOk)
	mustApply(t, m, PathLost)

	res, err := m.Apply(RetryBudgetExhausted)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Failed || res.FailReason != FailReasonBudget {
		t.Fatalf("state = %s reason = %v, want Failed(Budget)", res.State, res.FailReason)
	}
}

func TestUserHangup_FromAnyConnectedStateGoesToClosed(t *testing.T) {
	m := New(testTiming())
	mustApply(t, m, StartConnect)
	res, err := m.Apply(UserHangup)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != Closed {
		t.Fatalf("state = %s, want Closed", res.State)
	}
}

func mustApply(t *testing.T, m *Machine, trig Trigger) {
	t.Helper()
	if _, err := m.Apply(trig); err != nil {
		t.Fatalf("apply %s in state %s: %v", trig, m.State(), err)
	}
}
