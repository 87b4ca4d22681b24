package sessionauth

import (
	"testing"

	"github.com/google/uuid"

	"github.com/aetherlink/aetherlink/pkg/identity"
	"github.com/aetherlink/aetherlink/pkg/noncecache"
	"github.com/aetherlink/aetherlink/pkg/trust"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

func newTestKey(t *testing.T) *identity.Key {
	t.Helper()
	k, err := identity.LoadOrCreate(t.TempDir() + "/device.key")
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func newRequest(t *testing.T, k *identity.Key, target string, nonce []byte, unixMS int64) *wire.SessionRequest {
	t.Helper()
	pidBytes := []byte(k.PeerID)
	req := &wire.SessionRequest{
		SessionID: uuid.NewString(),
		From: &wire.DeviceIdentity{
			PeerID:         pidBytes,
			IdentityPubkey: k.Pub,
			DeviceCode:     "device-a",
		},
		RequestedRole:    wire.SessionRoleController,
		TargetDeviceCode: target,
		Nonce:            nonce,
		UnixMS:           unixMS,
		Version:          &wire.ProtocolVersion{Major: 1},
	}
	SignSessionRequest(req, k)
	return req
}

func TestVerifySessionRequest_HappyPath(t *testing.T) {
	k := newTestKey(t)
	req := newRequest(t, k, "device-b", []byte("0123456789ab"), 1_000_000)

	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	vp, err := VerifySessionRequest(req, nil, "device-b", 1_000_000, 30_000, replay, trustStore, true)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if vp.DeviceCode != "device-a" {
		t.Errorf("device code = %q", vp.DeviceCode)
	}
	if !vp.TrustStoreChanged {
		t.Error("expected trust store changed on first TOFU insert")
	}
}

func TestVerifySessionRequest_RejectsReplay(t *testing.T) {
	k := newTestKey(t)
	req := newRequest(t, k, "", []byte("0123456789ab"), 1_000_000)

	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	if _, err := VerifySessionRequest(req, nil, "", 1_000_000, 30_000, replay, trustStore, true); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := VerifySessionRequest(req, nil, "", 1_005_000, 30_000, replay, trustStore, true)
	if err != ErrReplayDetected {
		t.Fatalf("err = %v, want ErrReplayDetected", err)
	}
}

func TestVerifySessionRequest_FlippedSignatureRejected(t *testing.T) {
	k := newTestKey(t)
	req := newRequest(t, k, "", []byte("0123456789ab"), 1_000_000)
	req.Signature[0] ^= 0xFF

	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()
	_, err := VerifySessionRequest(req, nil, "", 1_000_000, 30_000, replay, trustStore, true)
	if err != ErrInvalidSignature {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifySessionRequest_NonceBoundary(t *testing.T) {
	k := newTestKey(t)
	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	shortReq := newRequest(t, k, "", []byte("0123456789a"), 1_000_000) // 11 bytes
	_, err := VerifySessionRequest(shortReq, nil, "", 1_000_000, 30_000, replay, trustStore, true)
	var tooShort *NonceTooShortError
	if err == nil {
		t.Fatal("expected NonceTooShortError")
	}
	if e, ok := err.(*NonceTooShortError); !ok {
		t.Fatalf("err = %v (%T), want *NonceTooShortError", err, err)
	} else {
		tooShort = e
	}
	if tooShort.MinBytes != MinNonceBytes {
		t.Errorf("MinBytes = %d", tooShort.MinBytes)
	}

	okReq := newRequest(t, k, "", []byte("0123456789ab"), 1_000_000) // 12 bytes
	if _, err := VerifySessionRequest(okReq, nil, "", 1_000_000, 30_000, replay, trustStore, true); err != nil {
		t.Fatalf("12-byte nonce should be accepted: %v", err)
	}
}

func TestVerifySessionRequest_SkewBoundary(t *testing.T) {
	k := newTestKey(t)
	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	atBoundary := newRequest(t, k, "", []byte("0123456789ab"), 1_030_000)
	if _, err := VerifySessionRequest(atBoundary, nil, "", 1_000_000, 30_000, replay, trustStore, true); err != nil {
		t.Fatalf("skew == bound should be accepted: %v", err)
	}

	pastBoundary := newRequest(t, k, "", []byte("ab0123456789"), 1_030_001)
	_, err := VerifySessionRequest(pastBoundary, nil, "", 1_000_000, 30_000, replay, trustStore, true)
	if err != ErrTimestampSkew {
		t.Fatalf("err = %v, want ErrTimestampSkew", err)
	}
}

func TestVerifySessionRequest_InvalidTargetDeviceCode(t *testing.T) {
	k := newTestKey(t)
	req := newRequest(t, k, "device-c", []byte("0123456789ab"), 1_000_000)
	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	_, err := VerifySessionRequest(req, nil, "device-b", 1_000_000, 30_000, replay, trustStore, true)
	if err != ErrInvalidTargetDeviceCode {
		t.Fatalf("err = %v, want ErrInvalidTargetDeviceCode", err)
	}
}

func TestVerifySessionRequest_PinningViolation(t *testing.T) {
	k1 := newTestKey(t)
	k2 := newTestKey(t)
	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	req1 := newRequest(t, k1, "", []byte("0123456789ab"), 1_000_000)
	if _, err := VerifySessionRequest(req1, nil, "", 1_000_000, 30_000, replay, trustStore, true); err != nil {
		t.Fatal(err)
	}

	req2 := newRequest(t, k2, "", []byte("ba9876543210"), 1_001_000)
	req2.From.DeviceCode = "device-a" // same code, different key
	SignSessionRequest(req2, k2)
	_, err := VerifySessionRequest(req2, nil, "", 1_001_000, 30_000, replay, trustStore, true)
	if err != trust.ErrTrustedPeerMismatch {
		t.Fatalf("err = %v, want trust.ErrTrustedPeerMismatch", err)
	}
}

func TestVerifySessionAccept_RequestNonceBinding(t *testing.T) {
	reqK := newTestKey(t)
	accK := newTestKey(t)
	replay := noncecache.New(60_000)
	trustStore := trust.NewStore()

	sessionID := uuid.NewString()
	accPidBytes := []byte(accK.PeerID)
	acc := &wire.SessionAccept{
		SessionID: sessionID,
		From: &wire.DeviceIdentity{
			PeerID:         accPidBytes,
			IdentityPubkey: accK.Pub,
			DeviceCode:     "device-b",
		},
		Nonce:        []byte("responder-n1"),
		UnixMS:       1_000_100,
		Version:      &wire.ProtocolVersion{Major: 1},
		RequestNonce: []byte("0123456789ab"),
	}
	SignSessionAccept(acc, accK)

	pending := PendingSession{SessionID: sessionID, RequestNonces: [][]byte{[]byte("0123456789ab")}}
	if _, err := VerifySessionAccept(acc, pending, nil, 1_000_100, 30_000, replay, trustStore, true); err != nil {
		t.Fatalf("verify: %v", err)
	}

	acc2 := &wire.SessionAccept{
		SessionID: sessionID,
		From:      acc.From,
		Nonce:     []byte("responder-n2"),
		UnixMS:    1_000_200,
		Version:   &wire.ProtocolVersion{Major: 1},
		RequestNonce: []byte("mismatched12"),
	}
	SignSessionAccept(acc2, accK)
	_, err := VerifySessionAccept(acc2, pending, nil, 1_000_200, 30_000, replay, trustStore, true)
	if err != ErrRequestNonceMismatch {
		t.Fatalf("err = %v, want ErrRequestNonceMismatch", err)
	}
	_ = reqK
}
