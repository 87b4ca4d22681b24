package wire

// Field numbers for DeviceIdentity. Part of the wire contract; never
// renumber or reuse a retired number.
const (
	fieldIdentityPeerID = 1
	fieldIdentityPubkey = 2
	fieldIdentityCode   = 3
)

func marshalIdentity(id *DeviceIdentity) []byte {
	if id == nil {
		return nil
	}
	var buf []byte
	buf = putBytesField(buf, fieldIdentityPeerID, id.PeerID)
	buf = putBytesField(buf, fieldIdentityPubkey, id.IdentityPubkey)
	buf = putStringField(buf, fieldIdentityCode, id.DeviceCode)
	return buf
}

func unmarshalIdentity(b []byte) (*DeviceIdentity, error) {
	id := &DeviceIdentity{}
	r := newFieldReader(b)
	for !r.done() {
		field, wt, _, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldIdentityPeerID:
			id.PeerID = append([]byte(nil), val...)
		case fieldIdentityPubkey:
			id.IdentityPubkey = append([]byte(nil), val...)
		case fieldIdentityCode:
			id.DeviceCode = string(val)
		default:
			_ = wt
			return nil, ErrUnknownField
		}
	}
	return id, nil
}

// Field numbers for ProtocolVersion.
const (
	fieldVersionMajor = 1
	fieldVersionMinor = 2
	fieldVersionPatch = 3
)

func marshalVersion(v *ProtocolVersion) []byte {
	if v == nil {
		return nil
	}
	var buf []byte
	buf = putVarintField(buf, fieldVersionMajor, uint64(v.Major))
	buf = putVarintField(buf, fieldVersionMinor, uint64(v.Minor))
	buf = putVarintField(buf, fieldVersionPatch, uint64(v.Patch))
	return buf
}

func unmarshalVersion(b []byte) (*ProtocolVersion, error) {
	v := &ProtocolVersion{}
	r := newFieldReader(b)
	for !r.done() {
		field, _, u, _, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldVersionMajor:
			v.Major = uint32(u)
		case fieldVersionMinor:
			v.Minor = uint32(u)
		case fieldVersionPatch:
			v.Patch = uint32(u)
		default:
			return nil, ErrUnknownField
		}
	}
	return v, nil
}

// Field numbers for SessionRequest.
const (
	fieldReqSessionID      = 1
	fieldReqFrom           = 2
	fieldReqRole           = 3
	fieldReqTargetCode     = 4
	fieldReqCodecs         = 5
	fieldReqAllowRelay     = 6
	fieldReqMaxFPS         = 7
	fieldReqMaxWidth       = 8
	fieldReqMaxHeight      = 9
	fieldReqNonce          = 10
	fieldReqUnixMS         = 11
	fieldReqVersion        = 12
	fieldReqSignature      = 13
)

// MarshalSessionRequest returns the canonical encoding of req. If
// includeSignature is false, the signature field is omitted regardless of
// req.Signature's contents — this is the payload signatures are computed
// and verified over (spec §4.4).
func MarshalSessionRequest(req *SessionRequest, includeSignature bool) []byte {
	var buf []byte
	buf = putStringField(buf, fieldReqSessionID, req.SessionID)
	buf = putBytesField(buf, fieldReqFrom, marshalIdentity(req.From))
	buf = putVarintField(buf, fieldReqRole, uint64(req.RequestedRole))
	buf = putStringField(buf, fieldReqTargetCode, req.TargetDeviceCode)
	for _, c := range req.SupportedCodecs {
		buf = putTag(buf, fieldReqCodecs, wireVarint)
		buf = putUvarint(buf, uint64(c))
	}
	buf = putBoolField(buf, fieldReqAllowRelay, req.AllowRelay)
	buf = putVarintField(buf, fieldReqMaxFPS, uint64(req.PreferredMaxFPS))
	buf = putVarintField(buf, fieldReqMaxWidth, uint64(req.PreferredMaxWidth))
	buf = putVarintField(buf, fieldReqMaxHeight, uint64(req.PreferredMaxHeight))
	buf = putBytesField(buf, fieldReqNonce, req.Nonce)
	buf = putVarintField(buf, fieldReqUnixMS, uint64(req.UnixMS))
	buf = putBytesField(buf, fieldReqVersion, marshalVersion(req.Version))
	if includeSignature {
		buf = putBytesField(buf, fieldReqSignature, req.Signature)
	}
	return buf
}

// UnmarshalSessionRequest decodes a canonical SessionRequest.
func UnmarshalSessionRequest(b []byte) (*SessionRequest, error) {
	req := &SessionRequest{}
	r := newFieldReader(b)
	for !r.done() {
		field, wt, u, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldReqSessionID:
			req.SessionID = string(val)
		case fieldReqFrom:
			id, err := unmarshalIdentity(val)
			if err != nil {
				return nil, err
			}
			req.From = id
		case fieldReqRole:
			req.RequestedRole = SessionRole(u)
		case fieldReqTargetCode:
			req.TargetDeviceCode = string(val)
		case fieldReqCodecs:
			req.SupportedCodecs = append(req.SupportedCodecs, VideoCodec(u))
		case fieldReqAllowRelay:
			req.AllowRelay = u != 0
		case fieldReqMaxFPS:
			req.PreferredMaxFPS = uint32(u)
		case fieldReqMaxWidth:
			req.PreferredMaxWidth = uint32(u)
		case fieldReqMaxHeight:
			req.PreferredMaxHeight = uint32(u)
		case fieldReqNonce:
			req.Nonce = append([]byte(nil), val...)
		case fieldReqUnixMS:
			req.UnixMS = int64(u)
		case fieldReqVersion:
			v, err := unmarshalVersion(val)
			if err != nil {
				return nil, err
			}
			req.Version = v
		case fieldReqSignature:
			req.Signature = append([]byte(nil), val...)
		default:
			_ = wt
			return nil, ErrUnknownField
		}
	}
	return req, nil
}

// Field numbers for SessionAccept.
const (
	fieldAccSessionID      = 1
	fieldAccFrom           = 2
	fieldAccCodec          = 3
	fieldAccFPS            = 4
	fieldAccWidth          = 5
	fieldAccHeight         = 6
	fieldAccUsingRelay     = 7
	fieldAccPathID         = 8
	fieldAccNonce          = 9
	fieldAccUnixMS         = 10
	fieldAccVersion        = 11
	fieldAccRequestNonce   = 12
	fieldAccSignature      = 13
)

// MarshalSessionAccept returns the canonical encoding of acc. As with
// MarshalSessionRequest, includeSignature controls whether the signature
// field is emitted; the signing/verification payload always omits it.
func MarshalSessionAccept(acc *SessionAccept, includeSignature bool) []byte {
	var buf []byte
	buf = putStringField(buf, fieldAccSessionID, acc.SessionID)
	buf = putBytesField(buf, fieldAccFrom, marshalIdentity(acc.From))
	buf = putVarintField(buf, fieldAccCodec, uint64(acc.SelectedCodec))
	buf = putVarintField(buf, fieldAccFPS, uint64(acc.SelectedFPS))
	buf = putVarintField(buf, fieldAccWidth, uint64(acc.SelectedWidth))
	buf = putVarintField(buf, fieldAccHeight, uint64(acc.SelectedHeight))
	buf = putBoolField(buf, fieldAccUsingRelay, acc.UsingRelay)
	buf = putStringField(buf, fieldAccPathID, acc.PathID)
	buf = putBytesField(buf, fieldAccNonce, acc.Nonce)
	buf = putVarintField(buf, fieldAccUnixMS, uint64(acc.UnixMS))
	buf = putBytesField(buf, fieldAccVersion, marshalVersion(acc.Version))
	buf = putBytesField(buf, fieldAccRequestNonce, acc.RequestNonce)
	if includeSignature {
		buf = putBytesField(buf, fieldAccSignature, acc.Signature)
	}
	return buf
}

// UnmarshalSessionAccept decodes a canonical SessionAccept.
func UnmarshalSessionAccept(b []byte) (*SessionAccept, error) {
	acc := &SessionAccept{}
	r := newFieldReader(b)
	for !r.done() {
		field, wt, u, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldAccSessionID:
			acc.SessionID = string(val)
		case fieldAccFrom:
			id, err := unmarshalIdentity(val)
			if err != nil {
				return nil, err
			}
			acc.From = id
		case fieldAccCodec:
			acc.SelectedCodec = VideoCodec(u)
		case fieldAccFPS:
			acc.SelectedFPS = uint32(u)
		case fieldAccWidth:
			acc.SelectedWidth = uint32(u)
		case fieldAccHeight:
			acc.SelectedHeight = uint32(u)
		case fieldAccUsingRelay:
			acc.UsingRelay = u != 0
		case fieldAccPathID:
			acc.PathID = string(val)
		case fieldAccNonce:
			acc.Nonce = append([]byte(nil), val...)
		case fieldAccUnixMS:
			acc.UnixMS = int64(u)
		case fieldAccVersion:
			v, err := unmarshalVersion(val)
			if err != nil {
				return nil, err
			}
			acc.Version = v
		case fieldAccRequestNonce:
			acc.RequestNonce = append([]byte(nil), val...)
		case fieldAccSignature:
			acc.Signature = append([]byte(nil), val...)
		default:
			_ = wt
			return nil, ErrUnknownField
		}
	}
	return acc, nil
}

// Field numbers for SessionReject.
const (
	fieldRejSessionID = 1
	fieldRejReason    = 2
	fieldRejDetail    = 3
)

func MarshalSessionReject(rej *SessionReject) []byte {
	var buf []byte
	buf = putStringField(buf, fieldRejSessionID, rej.SessionID)
	buf = putVarintField(buf, fieldRejReason, uint64(rej.Reason))
	buf = putStringField(buf, fieldRejDetail, rej.Detail)
	return buf
}

func UnmarshalSessionReject(b []byte) (*SessionReject, error) {
	rej := &SessionReject{}
	r := newFieldReader(b)
	for !r.done() {
		field, _, u, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldRejSessionID:
			rej.SessionID = string(val)
		case fieldRejReason:
			rej.Reason = RejectReason(u)
		case fieldRejDetail:
			rej.Detail = string(val)
		default:
			return nil, ErrUnknownField
		}
	}
	return rej, nil
}

// Field numbers for Ping/Pong.
const (
	fieldPingSessionID = 1
	fieldPingSeq       = 2
	fieldPingSendMS    = 3

	fieldPongSessionID = 1
	fieldPongSeq       = 2
	fieldPongEchoMS    = 3
	fieldPongRecvMS    = 4
)

func MarshalPing(p *Ping) []byte {
	var buf []byte
	buf = putStringField(buf, fieldPingSessionID, p.SessionID)
	buf = putVarintField(buf, fieldPingSeq, p.Seq)
	buf = putVarintField(buf, fieldPingSendMS, uint64(p.SendUnixMS))
	return buf
}

func UnmarshalPing(b []byte) (*Ping, error) {
	p := &Ping{}
	r := newFieldReader(b)
	for !r.done() {
		field, _, u, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldPingSessionID:
			p.SessionID = string(val)
		case fieldPingSeq:
			p.Seq = u
		case fieldPingSendMS:
			p.SendUnixMS = int64(u)
		default:
			return nil, ErrUnknownField
		}
	}
	return p, nil
}

func MarshalPong(p *Pong) []byte {
	var buf []byte
	buf = putStringField(buf, fieldPongSessionID, p.SessionID)
	buf = putVarintField(buf, fieldPongSeq, p.Seq)
	buf = putVarintField(buf, fieldPongEchoMS, uint64(p.EchoSendUnixMS))
	buf = putVarintField(buf, fieldPongRecvMS, uint64(p.RecvUnixMS))
	return buf
}

func UnmarshalPong(b []byte) (*Pong, error) {
	p := &Pong{}
	r := newFieldReader(b)
	for !r.done() {
		field, _, u, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldPongSessionID:
			p.SessionID = string(val)
		case fieldPongSeq:
			p.Seq = u
		case fieldPongEchoMS:
			p.EchoSendUnixMS = int64(u)
		case fieldPongRecvMS:
			p.RecvUnixMS = int64(u)
		default:
			return nil, ErrUnknownField
		}
	}
	return p, nil
}

// Field numbers for the ControlMessage envelope one-of.
const (
	fieldEnvRequest = 1
	fieldEnvAccept  = 2
	fieldEnvReject  = 3
	fieldEnvPing    = 4
	fieldEnvPong    = 5
)

// MarshalControlMessage encodes the envelope for transport framing. Unlike
// the request/accept signing payloads, this always includes signatures.
func MarshalControlMessage(m *ControlMessage) []byte {
	var buf []byte
	switch {
	case m.SessionRequest != nil:
		buf = putBytesField(buf, fieldEnvRequest, MarshalSessionRequest(m.SessionRequest, true))
	case m.SessionAccept != nil:
		buf = putBytesField(buf, fieldEnvAccept, MarshalSessionAccept(m.SessionAccept, true))
	case m.SessionReject != nil:
		buf = putBytesField(buf, fieldEnvReject, MarshalSessionReject(m.SessionReject))
	case m.Ping != nil:
		buf = putBytesField(buf, fieldEnvPing, MarshalPing(m.Ping))
	case m.Pong != nil:
		buf = putBytesField(buf, fieldEnvPong, MarshalPong(m.Pong))
	}
	return buf
}

// UnmarshalControlMessage decodes a control envelope.
func UnmarshalControlMessage(b []byte) (*ControlMessage, error) {
	m := &ControlMessage{}
	r := newFieldReader(b)
	for !r.done() {
		field, _, _, val, err := r.next()
		if err != nil {
			return nil, err
		}
		switch field {
		case fieldEnvRequest:
			v, err := UnmarshalSessionRequest(val)
			if err != nil {
				return nil, err
			}
			m.SessionRequest = v
		case fieldEnvAccept:
			v, err := UnmarshalSessionAccept(val)
			if err != nil {
				return nil, err
			}
			m.SessionAccept = v
		case fieldEnvReject:
			v, err := UnmarshalSessionReject(val)
			if err != nil {
				return nil, err
			}
			m.SessionReject = v
		case fieldEnvPing:
			v, err := UnmarshalPing(val)
			if err != nil {
				return nil, err
			}
			m.Ping = v
		case fieldEnvPong:
			v, err := UnmarshalPong(val)
			if err != nil {
				return nil, err
			}
			m.Pong = v
		default:
			return nil, ErrUnknownField
		}
	}
	return m, nil
}
