// Package statemachine implements the per-peer connection state machine:
// states, triggers, armed timers, and the bounded reconnect budget (spec
// §4.5). The machine is pure — it does not own sockets, threads, or timer
// primitives; the engine that drives it owns those.
package statemachine

import (
	"fmt"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
)

// State is one of the connection lifecycle states (spec §4.5).
type State int

const (
	Idle State = iota
	Discovering
	DialingDirect
	HolePunching
	RelayDialing
	SecureHandshake
	Active
	Reconnecting
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Discovering:
		return "Discovering"
	case DialingDirect:
		return "DialingDirect"
	case HolePunching:
		return "HolePunching"
	case RelayDialing:
		return "RelayDialing"
	case SecureHandshake:
		return "SecureHandshake"
	case Active:
		return "Active"
	case Reconnecting:
		return "Reconnecting"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Trigger is an event fed into the machine (spec §4.5).
type Trigger int

const (
	StartConnect Trigger = iota
	CandidatesFound
	DiscoveryTimeout
	DirectConnected
	DirectNoSuccess
	PunchConnected
	PunchTimeout
	RelayConnected
	RelayTimeout
	HandshakeOk
	AuthFailed
	VersionMismatch
	PathLost
	RetryBudgetAvailable
	RetryBudgetExhausted
	UserRetry
	UserHangup
)

func (t Trigger) String() string {
	names := [...]string{
		"StartConnect", "CandidatesFound", "DiscoveryTimeout", "DirectConnected",
		"DirectNoSuccess", "PunchConnected", "PunchTimeout", "RelayConnected",
		"RelayTimeout", "HandshakeOk", "AuthFailed", "VersionMismatch", "PathLost",
		"RetryBudgetAvailable", "RetryBudgetExhausted", "UserRetry", "UserHangup",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "Unknown"
	}
	return names[t]
}

// FailReason distinguishes the cause of a terminal Failed state.
type FailReason int

const (
	FailReasonNone FailReason = iota
	FailReasonDiscovery
	FailReasonRelay
	FailReasonAuth
	FailReasonVersion
	FailReasonBudget
)

// TimerKind identifies which timer a transition requests be armed.
type TimerKind int

const (
	TimerNone TimerKind = iota
	TimerDiscovery
	TimerDirectDial
	TimerPunch
	TimerRelay
	TimerHandshake
	TimerReconnectBackoff
)

// InvalidTransitionError reports an (s, trigger) pair with no table entry
// (spec §4.5, §8 invariant 5).
type InvalidTransitionError struct {
	From    State
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("statemachine: invalid transition: trigger %s in state %s", e.Trigger, e.From)
}

// ArmedTimer describes a timer the engine must schedule after a
// transition.
type ArmedTimer struct {
	Kind     TimerKind
	Duration int64 // milliseconds
}

// Result is returned by Apply: the new state, any timer to arm, and
// whether the reconnect budget was reset.
type Result struct {
	State        State
	Timer        ArmedTimer
	FailReason   FailReason
	BudgetReset  bool
}

// Machine is a single per-peer connection state machine instance (spec §3
// ConnectionStateMachine). Created lazily on first connection event;
// destroyed on terminal Closed or process exit.
type Machine struct {
	state   State
	reason  FailReason
	timing  corecfg.TimingProfile

	reconnectAttempts  uint32
	reconnectElapsedMS int64
}

// New returns a machine starting in Idle with the given timing profile.
func New(timing corecfg.TimingProfile) *Machine {
	return &Machine{state: Idle, timing: timing}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// FailReason returns the reason recorded for a Failed state; meaningless
// otherwise.
func (m *Machine) FailReason() FailReason { return m.reason }

// ReconnectAttempts returns the current reconnect attempt count.
func (m *Machine) ReconnectAttempts() uint32 { return m.reconnectAttempts }

// ReconnectElapsedMS returns cumulative elapsed reconnect time in the
// current episode.
func (m *Machine) ReconnectElapsedMS() int64 { return m.reconnectElapsedMS }

// Apply drives the machine with trigger. On success it mutates state and
// returns the new state plus any timer to arm; on an invalid transition it
// leaves state unchanged and returns *InvalidTransitionError (spec §8
// invariant 5).
func (m *Machine) Apply(trigger Trigger) (Result, error) {
	from := m.state

	switch from {
	case Idle:
		if trigger == StartConnect {
			return m.transition(Discovering, ArmedTimer{TimerDiscovery, int64(m.timing.DiscoveryTimeout.Milliseconds())}, FailReasonNone, false)
		}

	case Discovering:
		switch trigger {
		case CandidatesFound:
			return m.transition(DialingDirect, ArmedTimer{TimerDirectDial, int64(m.timing.DirectDialBudget.Milliseconds())}, FailReasonNone, false)
		case DiscoveryTimeout:
			return m.transition(Failed, ArmedTimer{}, FailReasonDiscovery, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case DialingDirect:
		switch trigger {
		case DirectConnected:
			return m.transition(SecureHandshake, ArmedTimer{TimerHandshake, int64(m.timing.HandshakeTimeout.Milliseconds())}, FailReasonNone, false)
		case DirectNoSuccess:
			return m.transition(HolePunching, ArmedTimer{TimerPunch, int64(m.timing.PunchBudget.Milliseconds())}, FailReasonNone, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case HolePunching:
		switch trigger {
		case PunchConnected:
			return m.transition(SecureHandshake, ArmedTimer{TimerHandshake, int64(m.timing.HandshakeTimeout.Milliseconds())}, FailReasonNone, false)
		case PunchTimeout:
			return m.transition(RelayDialing, ArmedTimer{TimerRelay, int64(m.timing.RelayDialTimeout.Milliseconds())}, FailReasonNone, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case RelayDialing:
		switch trigger {
		case RelayConnected:
			return m.transition(SecureHandshake, ArmedTimer{TimerHandshake, int64(m.timing.HandshakeTimeout.Milliseconds())}, FailReasonNone, false)
		case RelayTimeout:
			return m.transition(Failed, ArmedTimer{}, FailReasonRelay, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case SecureHandshake:
		switch trigger {
		case HandshakeOk:
			m.resetReconnectBudget()
			return m.transition(Active, ArmedTimer{}, FailReasonNone, true)
		case AuthFailed:
			return m.transition(Failed, ArmedTimer{}, FailReasonAuth, false)
		case VersionMismatch:
			return m.transition(Failed, ArmedTimer{}, FailReasonVersion, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case Active:
		switch trigger {
		case PathLost:
			timer := m.chargeReconnectBudget()
			return m.transition(Reconnecting, timer, FailReasonNone, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case Reconnecting:
		switch trigger {
		case RetryBudgetAvailable:
			if m.hasBudget() {
				return m.transition(DialingDirect, ArmedTimer{TimerDirectDial, int64(m.timing.DirectDialBudget.Milliseconds())}, FailReasonNone, false)
			}
			return m.transition(Failed, ArmedTimer{}, FailReasonBudget, false)
		case RetryBudgetExhausted:
			return m.transition(Failed, ArmedTimer{}, FailReasonBudget, false)
		case UserHangup:
			return m.transition(Closed, ArmedTimer{}, FailReasonNone, false)
		}

	case Failed:
		if trigger == UserRetry {
			return m.transition(Idle, ArmedTimer{}, FailReasonNone, false)
		}

	case Closed:
		// Terminal; no triggers accepted.
	}

	return Result{State: from, FailReason: m.reason}, &InvalidTransitionError{From: from, Trigger: trigger}
}

func (m *Machine) transition(to State, timer ArmedTimer, reason FailReason, budgetReset bool) (Result, error) {
	m.state = to
	m.reason = reason
	return Result{State: to, Timer: timer, FailReason: reason, BudgetReset: budgetReset}, nil
}

func (m *Machine) resetReconnectBudget() {
	m.reconnectAttempts = 0
	m.reconnectElapsedMS = 0
}

// chargeReconnectBudget computes the next geometric backoff, arms it, and
// advances the attempt/elapsed counters (spec §4.5 "Reconnect budget").
func (m *Machine) chargeReconnectBudget() ArmedTimer {
	backoff := m.timing.ReconnectBackoffMin.Milliseconds() << m.reconnectAttempts
	max := m.timing.ReconnectBackoffMax.Milliseconds()
	if backoff > max || backoff <= 0 {
		backoff = max
	}
	m.reconnectAttempts++
	m.reconnectElapsedMS += backoff
	return ArmedTimer{Kind: TimerReconnectBackoff, Duration: backoff}
}

// hasBudget reports whether cumulative elapsed reconnect time is still
// under budget (spec §4.5: "has_budget := elapsed < budget_ms").
func (m *Machine) hasBudget() bool {
	return m.reconnectElapsedMS < m.timing.ReconnectBudget.Milliseconds()
}
