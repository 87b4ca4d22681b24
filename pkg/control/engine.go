// Package control implements the control session engine: the component
// that drives each peer's connection state machine, tracks pending
// outbound and active sessions, retries unanswered session requests, and
// runs the keepalive Ping/Pong loop (spec §4.7).
//
// The engine is single-threaded cooperative by design (spec §5): every
// exported method must be called from the same driving loop, in response
// to a transport event, a decoded control message, or a periodic Tick. No
// internal locking is used, matching "the state machine, pending tables,
// trust store, and nonce cache are therefore never contended."
package control

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pion/logging"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
	"github.com/aetherlink/aetherlink/pkg/identity"
	"github.com/aetherlink/aetherlink/pkg/noncecache"
	"github.com/aetherlink/aetherlink/pkg/sessionauth"
	"github.com/aetherlink/aetherlink/pkg/statemachine"
	"github.com/aetherlink/aetherlink/pkg/trust"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

// ControlTransport is the capability the engine sends control messages
// and issues disconnects through (spec §6 "Transport substrate").
// Responses and failures for a Send arrive later via ControlResponse /
// ControlOutboundFailure, correlated by the returned outbound id.
type ControlTransport interface {
	Send(ctx context.Context, peerID peer.ID, payload []byte) (outboundID string, err error)
	Disconnect(peerID peer.ID)
	IsConnected(peerID peer.ID) bool
}

// DiscoveryDriver is the subset of *discovery.Orchestrator the engine
// drives from Tick and consults to decide whether a newly connected peer
// is an auto-request target (spec §4.6, §4.7).
type DiscoveryDriver interface {
	AddTarget(deviceCode string)
	RemoveTarget(deviceCode string)
	PublishTick(ctx context.Context, now int64)
	LookupTick(ctx context.Context, now int64)
	TargetDeviceCodeForPeer(peerID peer.ID) (string, bool)
}

// SessionParams is what a SessionPolicy chooses when accepting an inbound
// SessionRequest (spec §4.7 step 4: "chosen codec/dimensions/path").
type SessionParams struct {
	Codec      wire.VideoCodec
	FPS        uint32
	Width      uint32
	Height     uint32
	PathID     string
	UsingRelay bool
}

// SessionPolicy selects the parameters this node replies with when
// accepting a session. The external collaborator that owns the actual
// media pipeline and path selection implements this (spec §1 "external
// collaborators").
type SessionPolicy interface {
	ChooseAccept(req *wire.SessionRequest) SessionParams
}

// DefaultSessionPolicy picks the first codec the requester advertises
// support for, capped to locally configured maxima, and never claims a
// relay path (the transport layer is the source of truth for that; a
// fixed default keeps the core usable without a media pipeline wired in).
type DefaultSessionPolicy struct {
	MaxFPS    uint32
	MaxWidth  uint32
	MaxHeight uint32
}

func (p DefaultSessionPolicy) ChooseAccept(req *wire.SessionRequest) SessionParams {
	codec := wire.VideoCodecH264
	if len(req.SupportedCodecs) > 0 {
		codec = req.SupportedCodecs[0]
	}
	return SessionParams{
		Codec:      codec,
		FPS:        capU32(req.PreferredMaxFPS, p.MaxFPS),
		Width:      capU32(req.PreferredMaxWidth, p.MaxWidth),
		Height:     capU32(req.PreferredMaxHeight, p.MaxHeight),
		PathID:     "direct",
		UsingRelay: false,
	}
}

func capU32(requested, max uint32) uint32 {
	if max == 0 {
		return requested
	}
	if requested == 0 || requested > max {
		return max
	}
	return requested
}

// EventSink receives user-visible notifications (spec §6 IPC surface
// events, §7 "user-visible behavior").
type EventSink interface {
	SessionState(peerID peer.ID, sessionID, state, detail string)
	Error(code, detail string)
}

// NoopEventSink discards every event; the zero value of Config uses it.
type NoopEventSink struct{}

func (NoopEventSink) SessionState(peer.ID, string, string, string) {}
func (NoopEventSink) Error(string, string)                         {}

// Config configures a new Engine. Identity, TrustStore, Replay,
// Discovery, and Transport must be non-nil.
type Config struct {
	Identity       *identity.Key
	LocalDeviceCode string
	TrustStore     *trust.Store
	TrustStorePath string
	Replay         *noncecache.Cache
	TrustOnFirstUse bool

	Discovery DiscoveryDriver
	Transport ControlTransport
	Policy    SessionPolicy
	Events    EventSink

	Timing  corecfg.TimingProfile
	Profile corecfg.EngineProfile
	Auth    corecfg.SessionAuthProfile

	SupportedCodecs []wire.VideoCodec
	AllowRelay      bool
	MaxFPS          uint32
	MaxWidth        uint32
	MaxHeight       uint32

	LoggerFactory logging.LoggerFactory
}

// Engine is the control session engine (spec §4.7). Callers must serialize
// calls to it; see the package doc comment.
type Engine struct {
	cfg Config
	log logging.LeveledLogger

	peers    map[peer.ID]*peerState
	outbound map[string]outboundRef
}

// New constructs an Engine from cfg, filling in defaults for
// Policy/Events/LoggerFactory when left unset.
func New(cfg Config) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = DefaultSessionPolicy{MaxFPS: cfg.MaxFPS, MaxWidth: cfg.MaxWidth, MaxHeight: cfg.MaxHeight}
	}
	if cfg.Events == nil {
		cfg.Events = NoopEventSink{}
	}
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	return &Engine{
		cfg:      cfg,
		log:      factory.NewLogger("control"),
		peers:    make(map[peer.ID]*peerState),
		outbound: make(map[string]outboundRef),
	}
}

// HasPendingOutbound satisfies discovery.PendingOutboundChecker so the
// dial orchestrator can skip redialing a peer whose session request is
// already in flight (spec §4.6 step 3).
func (e *Engine) HasPendingOutbound(peerID peer.ID) bool {
	ps, ok := e.peers[peerID]
	return ok && ps.pending != nil
}

// AddTargetDeviceCode registers a device code to auto-dial and
// auto-request a session with once connected.
func (e *Engine) AddTargetDeviceCode(code string) { e.cfg.Discovery.AddTarget(code) }

// RemoveTargetDeviceCode stops auto-dialing and auto-requesting code.
func (e *Engine) RemoveTargetDeviceCode(code string) { e.cfg.Discovery.RemoveTarget(code) }

// ensurePeer returns the peerState for peerID, creating a fresh one (with
// a fresh state machine in Idle) if none exists or the existing one
// reached the terminal Closed state (spec §3: "destroyed on terminal
// Closed or process exit").
func (e *Engine) ensurePeer(peerID peer.ID) *peerState {
	ps, ok := e.peers[peerID]
	if !ok || ps.machine.State() == statemachine.Closed {
		ps = &peerState{machine: statemachine.New(e.cfg.Timing)}
		e.peers[peerID] = ps
	}
	return ps
}

// applyIfValid drives ps's state machine with trig, swallowing an
// InvalidTransitionError: TransportConnected and TransportDisconnected
// fire triggers unconditionally per spec §4.7, and a peer's machine may
// already be past the state those triggers assume (e.g. a reconnect that
// skips Discovering). An unexpected non-transition error is logged.
func (e *Engine) applyIfValid(peerID peer.ID, ps *peerState, trig statemachine.Trigger) (statemachine.Result, bool) {
	res, err := ps.machine.Apply(trig)
	if err != nil {
		var ite *statemachine.InvalidTransitionError
		if !errors.As(err, &ite) {
			e.log.Warnf("peer %s: unexpected state machine error on %s: %v", peerID, trig, err)
		}
		return res, false
	}
	return res, true
}

func freshNonce() []byte {
	n := make([]byte, 16)
	_, _ = rand.Read(n)
	return n
}

func freshSessionID() string {
	return "session-" + uuid.NewString()
}

func (e *Engine) localIdentity() *wire.DeviceIdentity {
	return &wire.DeviceIdentity{
		PeerID:         []byte(e.cfg.Identity.PeerID),
		IdentityPubkey: []byte(e.cfg.Identity.Pub),
		DeviceCode:     e.cfg.LocalDeviceCode,
	}
}

// TransportConnected drives the connection state machine through its
// dial-success path and, for an auto-request target with no session yet,
// sends a fresh signed SessionRequest (spec §4.7).
func (e *Engine) TransportConnected(ctx context.Context, peerID peer.ID, now int64) {
	ps := e.ensurePeer(peerID)
	if ps.machine.State() == statemachine.Idle {
		e.applyIfValid(peerID, ps, statemachine.StartConnect)
	}
	if ps.machine.State() == statemachine.Discovering {
		e.applyIfValid(peerID, ps, statemachine.CandidatesFound)
	}
	if ps.machine.State() == statemachine.DialingDirect {
		e.applyIfValid(peerID, ps, statemachine.DirectConnected)
	}

	targetCode, isTarget := e.cfg.Discovery.TargetDeviceCodeForPeer(peerID)
	if isTarget && ps.pending == nil && ps.machine.State() != statemachine.Active {
		e.sendSessionRequest(ctx, peerID, ps, targetCode, now)
	}
}

// TransportDisconnected clears all per-peer session state and drives
// PathLost (spec §4.7).
func (e *Engine) TransportDisconnected(peerID peer.ID, now int64) {
	ps, ok := e.peers[peerID]
	if !ok {
		return
	}
	hadActive := ps.active != nil
	ps.pending = nil
	ps.active = nil
	e.applyIfValid(peerID, ps, statemachine.PathLost)
	if hadActive {
		e.cfg.Events.SessionState(peerID, ps.deviceCode, "disconnected", "transport closed")
	}
}

func (e *Engine) sendSessionRequest(ctx context.Context, peerID peer.ID, ps *peerState, targetCode string, now int64) {
	nonce := freshNonce()
	sessionID := freshSessionID()
	req := &wire.SessionRequest{
		SessionID:          sessionID,
		From:               e.localIdentity(),
		RequestedRole:      wire.SessionRoleController,
		TargetDeviceCode:   targetCode,
		SupportedCodecs:    e.cfg.SupportedCodecs,
		AllowRelay:         e.cfg.AllowRelay,
		PreferredMaxFPS:    e.cfg.MaxFPS,
		PreferredMaxWidth:  e.cfg.MaxWidth,
		PreferredMaxHeight: e.cfg.MaxHeight,
		Nonce:              nonce,
		UnixMS:             now,
		Version:            &wire.ProtocolVersion{Major: 1},
	}
	sessionauth.SignSessionRequest(req, e.cfg.Identity)
	payload := wire.MarshalControlMessage(&wire.ControlMessage{SessionRequest: req})

	outboundID, err := e.cfg.Transport.Send(ctx, peerID, payload)
	if err != nil {
		e.log.Warnf("peer %s: sending session request: %v", peerID, err)
		return
	}
	ps.pending = &pendingOutbound{
		sessionID:     sessionID,
		targetCode:    targetCode,
		requestNonces: [][]byte{nonce},
		attempts:      1,
		lastSendMS:    now,
		outboundID:    outboundID,
	}
	e.outbound[outboundID] = outboundRef{peer: peerID, kind: outboundSessionRequest}
}

// ControlRequest decodes an inbound control message and returns the
// reply payload to send back, if any (spec §4.7 "ControlRequest(peer_id,
// bytes, reply_sink)": the caller owns the reply_sink, the engine only
// decides what belongs on it).
func (e *Engine) ControlRequest(ctx context.Context, peerID peer.ID, payload []byte, now int64) ([]byte, error) {
	msg, err := wire.UnmarshalControlMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("control: decoding request: %w", err)
	}
	switch {
	case msg.SessionRequest != nil:
		return e.handleSessionRequest(peerID, msg.SessionRequest, now), nil
	case msg.Ping != nil:
		return e.handlePing(peerID, msg.Ping, now), nil
	default:
		return nil, fmt.Errorf("%w: %s as ControlRequest", ErrUnexpectedMessageKind, msg.Kind())
	}
}

func (e *Engine) handleSessionRequest(peerID peer.ID, req *wire.SessionRequest, now int64) []byte {
	ps := e.ensurePeer(peerID)

	if req.Version == nil || req.Version.Major != 1 {
		e.applyIfValid(peerID, ps, statemachine.VersionMismatch)
		return e.reject(req.SessionID, wire.RejectReasonVersionMismatch, "unsupported protocol major version")
	}

	verified, err := sessionauth.VerifySessionRequest(req, &peerID, e.cfg.LocalDeviceCode, now,
		e.cfg.Auth.AllowedSkew.Milliseconds(), e.cfg.Replay, e.cfg.TrustStore, e.cfg.TrustOnFirstUse)
	if err != nil {
		e.applyIfValid(peerID, ps, statemachine.AuthFailed)
		return e.reject(req.SessionID, mapRejectReason(err), err.Error())
	}
	e.persistTrustIfChanged(verified.TrustStoreChanged)

	params := e.cfg.Policy.ChooseAccept(req)
	acc := &wire.SessionAccept{
		SessionID:      req.SessionID,
		From:           e.localIdentity(),
		SelectedCodec:  params.Codec,
		SelectedFPS:    params.FPS,
		SelectedWidth:  params.Width,
		SelectedHeight: params.Height,
		UsingRelay:     params.UsingRelay,
		PathID:         params.PathID,
		Nonce:          freshNonce(),
		UnixMS:         now,
		Version:        &wire.ProtocolVersion{Major: 1},
		RequestNonce:   req.Nonce,
	}
	sessionauth.SignSessionAccept(acc, e.cfg.Identity)

	ps.deviceCode = verified.DeviceCode
	ps.active = &activeSession{sessionID: req.SessionID, lastSendMS: now, usingRelay: params.UsingRelay}
	e.applyIfValid(peerID, ps, statemachine.HandshakeOk)
	e.cfg.Events.SessionState(peerID, req.SessionID, "active", "")

	return wire.MarshalControlMessage(&wire.ControlMessage{SessionAccept: acc})
}

// mapRejectReason implements spec §7's propagation policy: Auth* failures
// map to AuthFailed, Policy failures to PolicyDenied.
func mapRejectReason(err error) wire.RejectReason {
	switch {
	case errors.Is(err, sessionauth.ErrInvalidTargetDeviceCode),
		errors.Is(err, trust.ErrUntrustedPeer),
		errors.Is(err, trust.ErrTrustedPeerMismatch):
		return wire.RejectReasonPolicyDenied
	default:
		return wire.RejectReasonAuthFailed
	}
}

func (e *Engine) reject(sessionID string, reason wire.RejectReason, detail string) []byte {
	return wire.MarshalControlMessage(&wire.ControlMessage{SessionReject: &wire.SessionReject{
		SessionID: sessionID,
		Reason:    reason,
		Detail:    detail,
	}})
}

func (e *Engine) persistTrustIfChanged(changed bool) {
	if !changed || e.cfg.TrustStorePath == "" {
		return
	}
	if err := e.cfg.TrustStore.Persist(e.cfg.TrustStorePath); err != nil {
		// Persistence errors never fail an in-progress handshake (spec
		// §7): the in-memory trust store already reflects the peer.
		e.log.Warnf("persisting trust store: %v", err)
	}
}

func (e *Engine) handlePing(peerID peer.ID, ping *wire.Ping, now int64) []byte {
	if ps, ok := e.peers[peerID]; ok && ps.active != nil && ps.active.sessionID != ping.SessionID {
		e.log.Debugf("peer %s: ping session id %q does not match active session %q", peerID, ping.SessionID, ps.active.sessionID)
	}
	return wire.MarshalControlMessage(&wire.ControlMessage{Pong: &wire.Pong{
		SessionID:      ping.SessionID,
		Seq:            ping.Seq,
		EchoSendUnixMS: ping.SendUnixMS,
		RecvUnixMS:     now,
	}})
}

// ControlResponse resolves an outstanding outbound operation (spec §4.7
// "ControlResponse(peer_id, outbound_id, bytes)").
func (e *Engine) ControlResponse(peerID peer.ID, outboundID string, payload []byte, now int64) error {
	delete(e.outbound, outboundID)

	msg, err := wire.UnmarshalControlMessage(payload)
	if err != nil {
		return fmt.Errorf("control: decoding response: %w", err)
	}

	ps, ok := e.peers[peerID]
	switch {
	case msg.SessionAccept != nil:
		if !ok {
			return nil
		}
		e.handleSessionAccept(peerID, ps, msg.SessionAccept, now)
	case msg.SessionReject != nil:
		if !ok {
			return nil
		}
		e.handleSessionReject(peerID, ps, msg.SessionReject)
	case msg.Pong != nil:
		if !ok {
			return nil
		}
		e.handlePong(ps, msg.Pong, now)
	default:
		return fmt.Errorf("%w: %s as ControlResponse", ErrUnexpectedMessageKind, msg.Kind())
	}
	return nil
}

func (e *Engine) handleSessionAccept(peerID peer.ID, ps *peerState, acc *wire.SessionAccept, now int64) {
	if ps.pending == nil {
		e.applyIfValid(peerID, ps, statemachine.AuthFailed)
		return
	}
	pending := sessionauth.PendingSession{SessionID: ps.pending.sessionID, RequestNonces: ps.pending.requestNonces}

	verified, err := sessionauth.VerifySessionAccept(acc, pending, &peerID, now,
		e.cfg.Auth.AllowedSkew.Milliseconds(), e.cfg.Replay, e.cfg.TrustStore, e.cfg.TrustOnFirstUse)
	if err != nil {
		ps.pending = nil
		e.applyIfValid(peerID, ps, statemachine.AuthFailed)
		e.cfg.Events.SessionState(peerID, acc.SessionID, "failed", err.Error())
		return
	}
	e.persistTrustIfChanged(verified.TrustStoreChanged)

	ps.pending = nil
	ps.deviceCode = verified.DeviceCode
	ps.active = &activeSession{sessionID: acc.SessionID, lastSendMS: now, usingRelay: acc.UsingRelay}
	e.applyIfValid(peerID, ps, statemachine.HandshakeOk)
	e.cfg.Events.SessionState(peerID, acc.SessionID, "active", "")
}

func (e *Engine) handleSessionReject(peerID peer.ID, ps *peerState, rej *wire.SessionReject) {
	ps.pending = nil
	e.applyIfValid(peerID, ps, statemachine.AuthFailed)
	e.cfg.Events.SessionState(peerID, rej.SessionID, "failed", rej.Detail)
}

func (e *Engine) handlePong(ps *peerState, pong *wire.Pong, now int64) {
	if ps.active == nil || !ps.active.awaiting {
		return
	}
	if ps.active.sessionID != pong.SessionID || ps.active.awaitingSeq != pong.Seq {
		return
	}
	ps.active.awaiting = false
	ps.active.consecutiveMisses = 0
	ps.active.lastRTTMS = now - pong.EchoSendUnixMS
}

// ControlOutboundFailure reports that an earlier Send never resolved
// (spec §4.7 "ControlOutboundFailure(outbound_id)").
func (e *Engine) ControlOutboundFailure(peerID peer.ID, outboundID string, sendErr error) {
	ref, ok := e.outbound[outboundID]
	if !ok {
		return
	}
	delete(e.outbound, outboundID)

	ps, ok := e.peers[peerID]
	if !ok {
		return
	}

	switch ref.kind {
	case outboundSessionRequest:
		ps.pending = nil
		e.applyIfValid(peerID, ps, statemachine.AuthFailed)
		e.cfg.Events.SessionState(peerID, "", "failed", sendErr.Error())
	case outboundKeepalivePing:
		if ps.active == nil || !ps.active.awaiting || ps.active.awaitingSeq != ref.seq {
			return
		}
		ps.active.awaiting = false
		ps.active.consecutiveMisses++
		if ps.active.consecutiveMisses >= e.cfg.Profile.KeepaliveMaxConsecutiveMiss {
			e.dropActiveSession(peerID, ps, "keepalive miss threshold reached")
		}
	}
}

func (e *Engine) dropActiveSession(peerID peer.ID, ps *peerState, reason string) {
	ps.active = nil
	e.cfg.Transport.Disconnect(peerID)
	e.cfg.Events.SessionState(peerID, "", "disconnected", reason)
}

// Tick runs session-request retries, the discovery publish/lookup loops,
// and the keepalive loop (spec §4.7 "On Tick").
func (e *Engine) Tick(ctx context.Context, now int64) {
	e.tickSessionRequestRetries(ctx, now)
	e.cfg.Discovery.PublishTick(ctx, now)
	e.cfg.Discovery.LookupTick(ctx, now)
	e.tickKeepalive(ctx, now)
}

func (e *Engine) tickSessionRequestRetries(ctx context.Context, now int64) {
	for peerID, ps := range e.peers {
		if ps.pending == nil {
			continue
		}
		if now-ps.pending.lastSendMS < e.cfg.Profile.SessionRequestTimeout.Milliseconds() {
			continue
		}
		if ps.pending.attempts >= e.cfg.Profile.SessionRequestMaxAttempts {
			ps.pending = nil
			e.applyIfValid(peerID, ps, statemachine.AuthFailed)
			e.cfg.Events.SessionState(peerID, "", "failed", "session request retries exhausted")
			continue
		}
		e.resendSessionRequest(ctx, peerID, ps, now)
	}
}

func (e *Engine) resendSessionRequest(ctx context.Context, peerID peer.ID, ps *peerState, now int64) {
	nonce := freshNonce()
	req := &wire.SessionRequest{
		SessionID:          ps.pending.sessionID,
		From:               e.localIdentity(),
		RequestedRole:      wire.SessionRoleController,
		TargetDeviceCode:   ps.pending.targetCode,
		SupportedCodecs:    e.cfg.SupportedCodecs,
		AllowRelay:         e.cfg.AllowRelay,
		PreferredMaxFPS:    e.cfg.MaxFPS,
		PreferredMaxWidth:  e.cfg.MaxWidth,
		PreferredMaxHeight: e.cfg.MaxHeight,
		Nonce:              nonce,
		UnixMS:             now,
		Version:            &wire.ProtocolVersion{Major: 1},
	}
	sessionauth.SignSessionRequest(req, e.cfg.Identity)
	payload := wire.MarshalControlMessage(&wire.ControlMessage{SessionRequest: req})

	outboundID, err := e.cfg.Transport.Send(ctx, peerID, payload)
	if err != nil {
		e.log.Warnf("peer %s: resending session request: %v", peerID, err)
		return
	}

	delete(e.outbound, ps.pending.outboundID)
	ps.pending.requestNonces = append(ps.pending.requestNonces, nonce)
	if len(ps.pending.requestNonces) > e.cfg.Profile.SessionRequestMaxAttempts {
		ps.pending.requestNonces = ps.pending.requestNonces[1:]
	}
	ps.pending.attempts++
	ps.pending.lastSendMS = now
	ps.pending.outboundID = outboundID
	e.outbound[outboundID] = outboundRef{peer: peerID, kind: outboundSessionRequest}
}

func (e *Engine) tickKeepalive(ctx context.Context, now int64) {
	for peerID, ps := range e.peers {
		if ps.active == nil || !e.cfg.Transport.IsConnected(peerID) {
			continue
		}
		if ps.active.awaiting {
			if now-ps.active.awaitingSinceMS >= e.cfg.Profile.KeepaliveTimeout.Milliseconds() {
				ps.active.awaiting = false
				ps.active.consecutiveMisses++
				if ps.active.consecutiveMisses >= e.cfg.Profile.KeepaliveMaxConsecutiveMiss {
					e.dropActiveSession(peerID, ps, "keepalive miss threshold reached")
				}
			}
			continue
		}
		if now-ps.active.lastSendMS < e.cfg.Profile.KeepaliveInterval.Milliseconds() {
			continue
		}
		e.sendKeepalivePing(ctx, peerID, ps, now)
	}
}

func (e *Engine) sendKeepalivePing(ctx context.Context, peerID peer.ID, ps *peerState, now int64) {
	seq := ps.active.nextSeq + 1
	payload := wire.MarshalControlMessage(&wire.ControlMessage{Ping: &wire.Ping{
		SessionID:  ps.active.sessionID,
		Seq:        seq,
		SendUnixMS: now,
	}})
	outboundID, err := e.cfg.Transport.Send(ctx, peerID, payload)
	if err != nil {
		e.log.Debugf("peer %s: sending keepalive ping: %v", peerID, err)
		return
	}
	ps.active.nextSeq = seq
	ps.active.lastSendMS = now
	ps.active.awaiting = true
	ps.active.awaitingSeq = seq
	ps.active.awaitingSinceMS = now
	ps.active.lastOutboundID = outboundID
	e.outbound[outboundID] = outboundRef{peer: peerID, kind: outboundKeepalivePing, seq: seq}
}

// ActiveSessionID returns the session id of the active session with
// peerID, if any. Used by IPC handlers to answer GetSessionStats (spec
// §6).
func (e *Engine) ActiveSessionID(peerID peer.ID) (string, bool) {
	ps, ok := e.peers[peerID]
	if !ok || ps.active == nil {
		return "", false
	}
	return ps.active.sessionID, true
}

// SessionStats is the subset of ActiveSession state exposed externally
// (spec §6 "GetSessionStats").
type SessionStats struct {
	RTTMS      int64
	UsingRelay bool
}

// Stats returns the last observed keepalive stats for peerID's active
// session.
func (e *Engine) Stats(peerID peer.ID) (SessionStats, bool) {
	ps, ok := e.peers[peerID]
	if !ok || ps.active == nil {
		return SessionStats{}, false
	}
	return SessionStats{RTTMS: ps.active.lastRTTMS, UsingRelay: ps.active.usingRelay}, true
}

// PeerState returns the connection state machine's current state for
// peerID, for diagnostics and IPC's SessionState events.
func (e *Engine) PeerState(peerID peer.ID) (statemachine.State, bool) {
	ps, ok := e.peers[peerID]
	if !ok {
		return statemachine.Idle, false
	}
	return ps.machine.State(), true
}

// PeerIDForSession finds the peer whose active session carries sessionID.
// IPC's GetSessionStats is keyed by session id, not peer id (spec §6), so
// the daemon needs this to turn one into the other before calling Stats.
func (e *Engine) PeerIDForSession(sessionID string) (peer.ID, bool) {
	for peerID, ps := range e.peers {
		if ps.active != nil && ps.active.sessionID == sessionID {
			return peerID, true
		}
	}
	return "", false
}
