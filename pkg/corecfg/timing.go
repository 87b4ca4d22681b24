// Package corecfg holds the tunables shared across the control plane:
// dial-phase timing, reconnect backoff, keepalive cadence, and discovery
// intervals. Every other package takes these as plain fields on a
// ...Config struct rather than reading them from a global.
package corecfg

import "time"

// TimingProfile configures every timed transition the connection state
// machine can arm (spec §4.5) and the reconnect budget it enforces.
type TimingProfile struct {
	DiscoveryTimeout    time.Duration
	DirectDialBudget    time.Duration
	PunchBudget         time.Duration
	RelayDialTimeout    time.Duration
	HandshakeTimeout    time.Duration
	PingInterval        time.Duration
	PathLostThreshold   uint32
	ReconnectBudget     time.Duration
	ReconnectBackoffMin time.Duration
	ReconnectBackoffMax time.Duration
}

// DefaultTimingProfile mirrors the reference implementation's defaults.
func DefaultTimingProfile() TimingProfile {
	return TimingProfile{
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

// SessionAuthProfile configures replay/skew bounds for pkg/sessionauth.
type SessionAuthProfile struct {
	MinNonceBytes         int
	AllowedSkew           time.Duration
	ReplayRetention       time.Duration
	LastSeenPersistPeriod time.Duration
}

// DefaultSessionAuthProfile mirrors the reference implementation's defaults.
// AllowedSkew must stay strictly less than ReplayRetention: any message that
// passes the skew check must still fall inside the replay cache's window.
func DefaultSessionAuthProfile() SessionAuthProfile {
	return SessionAuthProfile{
		MinNonceBytes:         12,
		AllowedSkew:           30 * time.Second,
		ReplayRetention:       60 * time.Second,
		LastSeenPersistPeriod: 60 * time.Second,
	}
}

// EngineProfile configures pkg/control's request retry, discovery, and
// keepalive cadence (spec §4.7).
type EngineProfile struct {
	TickInterval                time.Duration
	SessionRequestTimeout        time.Duration
	SessionRequestMaxAttempts    int
	DeviceLookupInterval         time.Duration
	DeviceRecordRepublishPeriod  time.Duration
	DisableDeviceRecordPublish   bool
	DeviceRecordFreshnessWindow  time.Duration
	DialCooldown                 time.Duration
	KeepaliveInterval            time.Duration
	KeepaliveTimeout             time.Duration
	KeepaliveMaxConsecutiveMiss  uint32
	FailHandshakeOnPersistError  bool
}

// DefaultEngineProfile mirrors the reference implementation's defaults.
func DefaultEngineProfile() EngineProfile {
	return EngineProfile{
		TickInterval:                200 * time.Millisecond,
		SessionRequestTimeout:        1200 * time.Millisecond,
		SessionRequestMaxAttempts:    3,
		DeviceLookupInterval:         2500 * time.Millisecond,
		DeviceRecordRepublishPeriod:  15000 * time.Millisecond,
		DisableDeviceRecordPublish:   false,
		DeviceRecordFreshnessWindow:  60 * time.Second,
		DialCooldown:                 2500 * time.Millisecond,
		KeepaliveInterval:            1000 * time.Millisecond,
		KeepaliveTimeout:             1200 * time.Millisecond,
		KeepaliveMaxConsecutiveMiss:  3,
		FailHandshakeOnPersistError:  false,
	}
}
