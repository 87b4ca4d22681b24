package control

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/aetherlink/aetherlink/pkg/statemachine"
)

// outboundKind distinguishes in-flight outbound operations so a late
// ControlResponse or ControlOutboundFailure can be routed back to the
// table it belongs to (spec §5 "outbound_id → kind").
type outboundKind int

const (
	outboundSessionRequest outboundKind = iota
	outboundKeepalivePing
)

// outboundRef is what the engine remembers about a send it is still
// waiting on.
type outboundRef struct {
	peer peer.ID
	kind outboundKind
	seq  uint64 // only meaningful for outboundKeepalivePing
}

// pendingOutbound is the retained state of a SessionRequest this node
// sent and has not yet resolved (spec §3 PendingOutboundSession).
type pendingOutbound struct {
	sessionID     string
	targetCode    string
	requestNonces [][]byte
	attempts      int
	lastSendMS    int64
	outboundID    string
}

// activeSession is the retained state of an established session,
// including keepalive bookkeeping (spec §3 ActiveSession, KeepaliveState).
type activeSession struct {
	sessionID         string
	nextSeq           uint64
	lastSendMS        int64
	awaiting          bool
	awaitingSeq       uint64
	awaitingSinceMS   int64
	consecutiveMisses uint32
	lastOutboundID    string
	lastRTTMS         int64
	usingRelay        bool
}

// peerState bundles everything the engine tracks for one remote peer: its
// connection state machine plus at most one pending outbound session and
// at most one active session (spec §5 ordering guarantees).
type peerState struct {
	machine    *statemachine.Machine
	deviceCode string
	pending    *pendingOutbound
	active     *activeSession
}
