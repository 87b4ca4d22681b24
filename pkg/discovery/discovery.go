// Package discovery implements the DHT publish/lookup orchestrator and the
// capability interfaces it drives: Transport, DHT, and Multicast (spec
// §4.6, §9 "three capability interfaces; concrete implementations are
// injected at engine construction").
package discovery

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pion/logging"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

// KeyPrefix is the DHT key namespace device announcements are published
// under (spec §3, §4.6).
const KeyPrefix = "/aetherlink/device/v1/"

// RecordKey returns the DHT key for a device code.
func RecordKey(deviceCode string) string {
	return KeyPrefix + deviceCode
}

// Transport is the capability the orchestrator dials candidates through
// (spec §6 "Transport substrate").
type Transport interface {
	// LocalAddrs returns the node's own listen/observed addresses, used to
	// build outgoing DeviceAnnouncements.
	LocalAddrs() []string
	// IsConnected reports whether a connection to peerID is already
	// established.
	IsConnected(peerID peer.ID) bool
	// AddAddress records addr as a known route to peerID.
	AddAddress(peerID peer.ID, addr string)
	// Dial attempts to establish a connection to peerID at addr.
	Dial(ctx context.Context, peerID peer.ID, addr string) error
}

// DHT is the opaque key/value capability device records are published to
// and looked up from (spec §6 "DHT substrate").
type DHT interface {
	PutRecord(ctx context.Context, key string, value []byte) error
	GetRecord(ctx context.Context, key string) ([]byte, error)
}

// Multicast is the optional local discovery capability; implementations
// feed newly observed (peer id, address) pairs into the transport address
// book themselves and need not be called directly by the orchestrator
// (spec §6 "Local multicast discovery").
type Multicast interface {
	Start(ctx context.Context) error
	Stop()
}

// PendingOutboundChecker reports whether a pending outbound session
// already exists for a peer, so the orchestrator can skip dialing it
// again (spec §4.6 step 3: "skip if ... a pending outbound session
// exists").
type PendingOutboundChecker interface {
	HasPendingOutbound(peerID peer.ID) bool
}

// Orchestrator runs the publish and lookup loops (spec §4.6). It is driven
// by the control engine's Tick; it performs no scheduling of its own.
type Orchestrator struct {
	transport Transport
	dht       DHT
	pending   PendingOutboundChecker
	profile   corecfg.EngineProfile
	log       logging.LeveledLogger

	localDeviceCode string
	localPeerID     peer.ID

	mu             sync.Mutex
	targets        map[string]struct{}
	lastPublishMS  int64
	lastLookupMS   map[string]int64
	lastDialMS     map[peer.ID]int64
	resolvedPeers  map[peer.ID]string
}

// Config configures a new Orchestrator.
type Config struct {
	Transport       Transport
	DHT             DHT
	Pending         PendingOutboundChecker
	Profile         corecfg.EngineProfile
	LocalDeviceCode string
	LocalPeerID     peer.ID
	LoggerFactory   logging.LoggerFactory
}

// New constructs an Orchestrator. Transport, DHT, and Pending must be
// non-nil.
func New(cfg Config) *Orchestrator {
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	return &Orchestrator{
		transport:       cfg.Transport,
		dht:             cfg.DHT,
		pending:         cfg.Pending,
		profile:         cfg.Profile,
		log:             factory.NewLogger("discovery"),
		localDeviceCode: cfg.LocalDeviceCode,
		localPeerID:     cfg.LocalPeerID,
		targets:         make(map[string]struct{}),
		lastLookupMS:    make(map[string]int64),
		lastDialMS:      make(map[peer.ID]int64),
		resolvedPeers:   make(map[peer.ID]string),
	}
}

// TargetDeviceCodeForPeer reports the device code a resolved peer id was
// looked up under, if any. The control engine uses this to decide whether
// a newly connected peer is an auto-request target (spec §4.7
// "TransportConnected": "if the peer is an auto-request target").
func (o *Orchestrator) TargetDeviceCodeForPeer(peerID peer.ID) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	code, ok := o.resolvedPeers[peerID]
	return code, ok
}

// AddTarget registers a device code to be looked up.
func (o *Orchestrator) AddTarget(deviceCode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targets[deviceCode] = struct{}{}
}

// RemoveTarget stops looking up a device code.
func (o *Orchestrator) RemoveTarget(deviceCode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.targets, deviceCode)
	delete(o.lastLookupMS, deviceCode)
}

// PublishTick runs the publish loop if the republish interval has elapsed
// (spec §4.6 "Publish loop"). The publish time is marked whether the put
// succeeds or fails, rate-limiting either way.
func (o *Orchestrator) PublishTick(ctx context.Context, now int64) {
	if o.profile.DisableDeviceRecordPublish {
		return
	}
	o.mu.Lock()
	due := now-o.lastPublishMS >= o.profile.DeviceRecordRepublishPeriod.Milliseconds()
	if !due {
		o.mu.Unlock()
		return
	}
	o.lastPublishMS = now
	o.mu.Unlock()

	ann := wire.DeviceAnnouncement{
		Version:    wire.DeviceAnnouncementVersion,
		DeviceCode: o.localDeviceCode,
		PeerID:     o.localPeerID.String(),
		Addrs:      o.transport.LocalAddrs(),
		UnixMS:     now,
	}
	raw, err := json.Marshal(ann)
	if err != nil {
		o.log.Errorf("marshaling device announcement: %v", err)
		return
	}
	if err := o.dht.PutRecord(ctx, RecordKey(o.localDeviceCode), raw); err != nil {
		o.log.Warnf("publishing device record: %v", err)
	}
}

// LookupTick runs the lookup loop for every target with no in-flight
// lookup due (spec §4.6 "Lookup loop").
func (o *Orchestrator) LookupTick(ctx context.Context, now int64) {
	o.mu.Lock()
	due := make([]string, 0, len(o.targets))
	for code := range o.targets {
		if now-o.lastLookupMS[code] >= o.profile.DeviceLookupInterval.Milliseconds() {
			due = append(due, code)
		}
	}
	o.mu.Unlock()

	for _, code := range due {
		o.lookupOne(ctx, code, now)
	}
}

func (o *Orchestrator) lookupOne(ctx context.Context, deviceCode string, now int64) {
	o.mu.Lock()
	o.lastLookupMS[deviceCode] = now
	o.mu.Unlock()

	raw, err := o.dht.GetRecord(ctx, RecordKey(deviceCode))
	if err != nil {
		o.log.Debugf("looking up device record %q: %v", deviceCode, err)
		return
	}

	var ann wire.DeviceAnnouncement
	if err := json.Unmarshal(raw, &ann); err != nil {
		o.log.Warnf("decoding device record %q: %v", deviceCode, err)
		return
	}
	if !o.acceptAnnouncement(ann, deviceCode, now) {
		return
	}

	pid, err := peer.Decode(ann.PeerID)
	if err != nil {
		o.log.Warnf("device record %q: peer id does not parse: %v", deviceCode, err)
		return
	}

	o.mu.Lock()
	o.resolvedPeers[pid] = deviceCode
	o.mu.Unlock()

	for _, addr := range ann.Addrs {
		resolved := resolveAddr(addr, ann.PeerID)
		o.transport.AddAddress(pid, resolved)
		o.maybeDial(ctx, pid, resolved, now)
	}
}

// acceptAnnouncement applies the filters of spec §4.6 step: drop records
// whose version is wrong, device code doesn't match, or peer id is our
// own. Freshness window is enforced if configured (spec §9 open question:
// "a bounded freshness window is recommended").
func (o *Orchestrator) acceptAnnouncement(ann wire.DeviceAnnouncement, wantCode string, now int64) bool {
	if ann.Version != wire.DeviceAnnouncementVersion {
		o.log.Debugf("device record %q: unsupported version %d", wantCode, ann.Version)
		return false
	}
	if ann.DeviceCode != wantCode {
		o.log.Debugf("device record %q: device code mismatch %q", wantCode, ann.DeviceCode)
		return false
	}
	if ann.PeerID == o.localPeerID.String() {
		return false
	}
	if window := o.profile.DeviceRecordFreshnessWindow.Milliseconds(); window > 0 {
		if now-ann.UnixMS > window {
			o.log.Debugf("device record %q: stale, age %dms exceeds window %dms", wantCode, now-ann.UnixMS, window)
			return false
		}
	}
	return true
}

// resolveAddr appends a /p2p/<peer_id> component if addr lacks one (spec
// §4.6 step 1). addr is parsed as a multiaddr rather than string-matched,
// so composition stays correct regardless of how many components it
// already carries.
func resolveAddr(addr, peerIDText string) string {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return addr
	}
	if _, err := maddr.ValueForProtocol(ma.P_P2P); err == nil {
		return maddr.String()
	}
	p2pComponent, err := ma.NewMultiaddr("/p2p/" + peerIDText)
	if err != nil {
		return maddr.String()
	}
	return maddr.Encapsulate(p2pComponent).String()
}

// maybeDial attempts to dial peerID at addr, subject to per-peer
// throttling (spec §4.6 step 3).
func (o *Orchestrator) maybeDial(ctx context.Context, peerID peer.ID, addr string, now int64) {
	if o.transport.IsConnected(peerID) {
		return
	}
	if o.pending != nil && o.pending.HasPendingOutbound(peerID) {
		return
	}

	o.mu.Lock()
	last := o.lastDialMS[peerID]
	cooldown := o.profile.DialCooldown.Milliseconds()
	if now-last < cooldown {
		o.mu.Unlock()
		return
	}
	o.lastDialMS[peerID] = now
	o.mu.Unlock()

	if err := o.transport.Dial(ctx, peerID, addr); err != nil {
		o.log.Debugf("dialing %s at %s: %v", peerID, addr, err)
	}
}
