// Package wire defines the handshake and control messages exchanged between
// two AetherLink nodes, and a canonical deterministic encoding for them.
//
// The canonical encoding is the byte string signatures are computed over
// (spec §4.4, §9 "Canonical serialization"). It is a flat, field-numbered
// binary form in the spirit of proto3: each field is written in ascending
// field-number order as a (field number, wire type) tag followed by its
// value, default-valued fields are omitted, and there is no support for
// unknown fields — a decoder that encounters an unexpected tag fails
// closed rather than re-emitting it. Field numbers are part of the wire
// contract and must not be renumbered.
package wire

import "fmt"

// ProtocolVersion identifies the wire protocol major/minor/patch.
type ProtocolVersion struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// SessionRole identifies which side of a session a peer requested.
type SessionRole int32

const (
	SessionRoleUnspecified SessionRole = 0
	SessionRoleController  SessionRole = 1
	SessionRoleHost        SessionRole = 2
)

func (r SessionRole) String() string {
	switch r {
	case SessionRoleController:
		return "controller"
	case SessionRoleHost:
		return "host"
	default:
		return "unspecified"
	}
}

// VideoCodec enumerates the codecs a node is willing to advertise support
// for. The actual codec implementation is an external collaborator (spec
// §1); the core only carries the enumeration through the handshake.
type VideoCodec int32

const (
	VideoCodecUnspecified VideoCodec = 0
	VideoCodecH264        VideoCodec = 1
	VideoCodecH265        VideoCodec = 2
	VideoCodecVP9         VideoCodec = 3
	VideoCodecAV1         VideoCodec = 4
)

// RejectReason enumerates the reasons a SessionRequest may be rejected
// (spec §3, §7 propagation policy).
type RejectReason int32

const (
	RejectReasonUnspecified   RejectReason = 0
	RejectReasonVersionMismatch RejectReason = 1
	RejectReasonPolicyDenied  RejectReason = 2
	RejectReasonAuthFailed    RejectReason = 3
)

func (r RejectReason) String() string {
	switch r {
	case RejectReasonVersionMismatch:
		return "VersionMismatch"
	case RejectReasonPolicyDenied:
		return "PolicyDenied"
	case RejectReasonAuthFailed:
		return "AuthFailed"
	default:
		return "Unspecified"
	}
}

// DeviceIdentity carries the sender's self-asserted identity (spec §3
// SessionRequest.from / SessionAccept.from).
type DeviceIdentity struct {
	PeerID         []byte // content-addressed peer id bytes
	IdentityPubkey []byte // raw public key bytes
	DeviceCode     string
}

// SessionRequest is the outbound handshake message (spec §3).
type SessionRequest struct {
	SessionID           string
	From                *DeviceIdentity
	RequestedRole       SessionRole
	TargetDeviceCode    string
	SupportedCodecs     []VideoCodec
	AllowRelay          bool
	PreferredMaxFPS     uint32
	PreferredMaxWidth   uint32
	PreferredMaxHeight  uint32
	Nonce               []byte
	UnixMS              int64
	Version             *ProtocolVersion
	Signature           []byte
}

// SessionAccept is the responder's reply to a verified SessionRequest (spec §3).
type SessionAccept struct {
	SessionID      string
	From           *DeviceIdentity
	SelectedCodec  VideoCodec
	SelectedFPS    uint32
	SelectedWidth  uint32
	SelectedHeight uint32
	UsingRelay     bool
	PathID         string
	Nonce          []byte
	UnixMS         int64
	Version        *ProtocolVersion
	RequestNonce   []byte
	Signature      []byte
}

// SessionReject explains why a SessionRequest was refused (spec §3).
type SessionReject struct {
	SessionID string
	Reason    RejectReason
	Detail    string
}

// Ping is the control-channel keepalive probe (spec §4.7).
type Ping struct {
	SessionID   string
	Seq         uint64
	SendUnixMS  int64
}

// Pong echoes a Ping (spec §4.7).
type Pong struct {
	SessionID       string
	Seq             uint64
	EchoSendUnixMS  int64
	RecvUnixMS      int64
}

// ControlMessage is the discriminated union carried over the control
// request/response substrate (spec §9 "tagged variant, not class
// hierarchy"). Exactly one field is non-nil.
type ControlMessage struct {
	SessionRequest *SessionRequest
	SessionAccept  *SessionAccept
	SessionReject  *SessionReject
	Ping           *Ping
	Pong           *Pong
}

// Kind returns a short tag for logging/dispatch.
func (m ControlMessage) Kind() string {
	switch {
	case m.SessionRequest != nil:
		return "SessionRequest"
	case m.SessionAccept != nil:
		return "SessionAccept"
	case m.SessionReject != nil:
		return "SessionReject"
	case m.Ping != nil:
		return "Ping"
	case m.Pong != nil:
		return "Pong"
	default:
		return "Empty"
	}
}

func (m ControlMessage) String() string {
	return fmt.Sprintf("ControlMessage(%s)", m.Kind())
}

// DeviceAnnouncement is the record published to and looked up from the DHT
// (spec §3, §4.6). It is JSON-encoded by pkg/discovery, not by the
// canonical binary codec: it never participates in a signature.
type DeviceAnnouncement struct {
	Version    int      `json:"version"`
	DeviceCode string   `json:"device_code"`
	PeerID     string   `json:"peer_id"`
	Addrs      []string `json:"addrs"`
	UnixMS     int64    `json:"unix_ms"`
}

// DeviceAnnouncementVersion is the only version this implementation emits
// or accepts (spec §3: "version=1").
const DeviceAnnouncementVersion = 1
