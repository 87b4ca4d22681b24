// Package sessionauth implements the session authentication codec: signing
// and verification of SessionRequest and SessionAccept messages against the
// canonical wire encoding, with nonce replay protection and trust-store
// binding (spec §4.4).
package sessionauth

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/aetherlink/aetherlink/pkg/identity"
	"github.com/aetherlink/aetherlink/pkg/noncecache"
	"github.com/aetherlink/aetherlink/pkg/trust"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

// MinNonceBytes is the minimum accepted nonce length (spec §3, §8).
const MinNonceBytes = 12

// VerifiedPeer is the result of a successful verify operation (spec §4.4).
type VerifiedPeer struct {
	PeerID            peer.ID
	DeviceCode        string
	TrustStoreChanged bool
}

// SignSessionRequest clears req.Signature, signs the canonical payload, and
// stores the signature back onto req (spec §4.4).
func SignSessionRequest(req *wire.SessionRequest, key *identity.Key) {
	req.Signature = nil
	payload := wire.MarshalSessionRequest(req, false)
	req.Signature = key.Sign(payload)
}

// SignSessionAccept clears acc.Signature, signs the canonical payload
// (which includes RequestNonce), and stores the signature back onto acc.
func SignSessionAccept(acc *wire.SessionAccept, key *identity.Key) {
	acc.Signature = nil
	payload := wire.MarshalSessionAccept(acc, false)
	acc.Signature = key.Sign(payload)
}

// identityClaim is the subset of fields common to both SessionRequest and
// SessionAccept that the identity-binding steps (3 through 9 of spec
// §4.4) operate over.
type identityClaim struct {
	from       *wire.DeviceIdentity
	nonce      []byte
	unixMS     int64
	payload    []byte
	signature  []byte
}

func verifyIdentity(c identityClaim, transportPeerID *peer.ID, now, skewMS int64, replay *noncecache.Cache, trustStore *trust.Store, tofu bool) (VerifiedPeer, error) {
	// Step 1: from present, device_code nonempty.
	if c.from == nil {
		return VerifiedPeer{}, ErrMissingSenderIdentity
	}
	if c.from.DeviceCode == "" {
		return VerifiedPeer{}, ErrMissingDeviceCode
	}

	// Step 3: nonce present and long enough.
	if len(c.nonce) == 0 {
		return VerifiedPeer{}, ErrMissingNonce
	}
	if len(c.nonce) < MinNonceBytes {
		return VerifiedPeer{}, &NonceTooShortError{MinBytes: MinNonceBytes, Got: len(c.nonce)}
	}

	// Step 4: timestamp skew.
	skew := c.unixMS - now
	if skew < 0 {
		skew = -skew
	}
	if skew > skewMS {
		return VerifiedPeer{}, ErrTimestampSkew
	}

	// Step 5: replay cache.
	if err := replay.CheckAndStore(c.nonce, now); err != nil {
		return VerifiedPeer{}, ErrReplayDetected
	}

	// Step 6: decode pubkey, verify signature.
	if len(c.from.IdentityPubkey) == 0 {
		return VerifiedPeer{}, ErrInvalidSenderPublicKey
	}
	if !identity.VerifySignature(c.from.IdentityPubkey, c.payload, c.signature) {
		return VerifiedPeer{}, ErrInvalidSignature
	}

	// Step 7: claimed peer id must equal the one derived from the pubkey.
	claimedPID, err := peer.IDFromBytes(c.from.PeerID)
	if err != nil {
		return VerifiedPeer{}, ErrInvalidSenderPeerID
	}
	derivedPID, err := identity.PeerIDFromPublicKey(c.from.IdentityPubkey)
	if err != nil {
		return VerifiedPeer{}, ErrInvalidSenderPublicKey
	}
	if claimedPID != derivedPID {
		return VerifiedPeer{}, ErrPeerIDMismatch
	}

	// Step 8: transport peer id binding.
	if transportPeerID != nil && *transportPeerID != derivedPID {
		return VerifiedPeer{}, ErrTransportPeerIDMismatch
	}

	// Step 9: trust store.
	res, err := trustStore.EnsureTrusted(c.from.DeviceCode, derivedPID, c.from.IdentityPubkey, now, tofu)
	if err != nil {
		return VerifiedPeer{}, err
	}

	return VerifiedPeer{PeerID: derivedPID, DeviceCode: c.from.DeviceCode, TrustStoreChanged: res.Changed}, nil
}

// VerifySessionRequest implements the nine-step verification order of spec
// §4.4. expectedTarget, if non-empty, must match msg.TargetDeviceCode.
// transportPeerID, if non-nil, must match the derived peer id.
func VerifySessionRequest(msg *wire.SessionRequest, transportPeerID *peer.ID, expectedTarget string, now, skewMS int64, replay *noncecache.Cache, trustStore *trust.Store, tofu bool) (VerifiedPeer, error) {
	if msg.From == nil {
		return VerifiedPeer{}, ErrMissingSenderIdentity
	}
	if msg.From.DeviceCode == "" {
		return VerifiedPeer{}, ErrMissingDeviceCode
	}
	if expectedTarget != "" && msg.TargetDeviceCode != expectedTarget {
		return VerifiedPeer{}, ErrInvalidTargetDeviceCode
	}

	payload := wire.MarshalSessionRequest(msg, false)
	return verifyIdentity(identityClaim{
		from:      msg.From,
		nonce:     msg.Nonce,
		unixMS:    msg.UnixMS,
		payload:   payload,
		signature: msg.Signature,
	}, transportPeerID, now, skewMS, replay, trustStore, tofu)
}

// PendingSession is the subset of pkg/control's pending-outbound-session
// record that VerifySessionAccept needs to bind an accept to its request
// (spec §4.4 accept-specific checks).
type PendingSession struct {
	SessionID      string
	RequestNonces  [][]byte
}

// hasNonce reports whether n is one of p.RequestNonces.
func (p PendingSession) hasNonce(n []byte) bool {
	for _, candidate := range p.RequestNonces {
		if bytesEqual(candidate, n) {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// VerifySessionAccept applies the same identity-binding rules as
// VerifySessionRequest, plus the accept-specific bindings: request_nonce
// must be nonempty and equal one of the pending session's retained
// nonces, and session_id must equal the pending session's (spec §4.4).
func VerifySessionAccept(msg *wire.SessionAccept, pending PendingSession, transportPeerID *peer.ID, now, skewMS int64, replay *noncecache.Cache, trustStore *trust.Store, tofu bool) (VerifiedPeer, error) {
	if msg.From == nil {
		return VerifiedPeer{}, ErrMissingSenderIdentity
	}
	if msg.From.DeviceCode == "" {
		return VerifiedPeer{}, ErrMissingDeviceCode
	}
	if len(msg.RequestNonce) == 0 {
		return VerifiedPeer{}, ErrMissingRequestNonceBinding
	}
	if !pending.hasNonce(msg.RequestNonce) {
		return VerifiedPeer{}, ErrRequestNonceMismatch
	}
	if msg.SessionID != pending.SessionID {
		return VerifiedPeer{}, ErrSessionIDMismatch
	}

	payload := wire.MarshalSessionAccept(msg, false)
	return verifyIdentity(identityClaim{
		from:      msg.From,
		nonce:     msg.Nonce,
		unixMS:    msg.UnixMS,
		payload:   payload,
		signature: msg.Signature,
	}, transportPeerID, now, skewMS, replay, trustStore, tofu)
}
