package discovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

type fakeTransport struct {
	addrs      []string
	connected  map[peer.ID]bool
	addedAddrs map[peer.ID][]string
	dialed     map[peer.ID][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected:  make(map[peer.ID]bool),
		addedAddrs: make(map[peer.ID][]string),
		dialed:     make(map[peer.ID][]string),
	}
}

func (f *fakeTransport) LocalAddrs() []string              { return f.addrs }
func (f *fakeTransport) IsConnected(p peer.ID) bool         { return f.connected[p] }
func (f *fakeTransport) AddAddress(p peer.ID, addr string)  { f.addedAddrs[p] = append(f.addedAddrs[p], addr) }
func (f *fakeTransport) Dial(ctx context.Context, p peer.ID, addr string) error {
	f.dialed[p] = append(f.dialed[p], addr)
	return nil
}

type fakeDHT struct {
	put map[string][]byte
	get map[string][]byte
}

func newFakeDHT() *fakeDHT {
	return &fakeDHT{put: make(map[string][]byte), get: make(map[string][]byte)}
}

func (f *fakeDHT) PutRecord(ctx context.Context, key string, value []byte) error {
	f.put[key] = value
	return nil
}

func (f *fakeDHT) GetRecord(ctx context.Context, key string) ([]byte, error) {
	if v, ok := f.get[key]; ok {
		return v, nil
	}
	return nil, errNotFound
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

type fakePending struct{ has map[peer.ID]bool }

func (f *fakePending) HasPendingOutbound(p peer.ID) bool { return f.has[p] }

func genPeerID(t *testing.T) peer.ID {
	t.Helper()
	pub, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return pid
}

func testProfile() corecfg.EngineProfile {
	p := corecfg.DefaultEngineProfile()
	p.DeviceLookupInterval = 2500 * time.Millisecond
	p.DeviceRecordRepublishPeriod = 15000 * time.Millisecond
	p.DialCooldown = 2500 * time.Millisecond
	p.DeviceRecordFreshnessWindow = 60 * time.Second
	return p
}

func TestPublishTick_RateLimited(t *testing.T) {
	transport := newFakeTransport()
	transport.addrs = []string{"/ip4/1.2.3.4/udp/9000/quic"}
	dht := newFakeDHT()
	localPID := genPeerID(t)

	o := New(Config{
		Transport:       transport,
		DHT:             dht,
		Pending:         &fakePending{},
		Profile:         testProfile(),
		LocalDeviceCode: "my-code",
		LocalPeerID:     localPID,
	})

	o.PublishTick(context.Background(), 0)
	if len(dht.put) != 1 {
		t.Fatalf("put count = %d, want 1", len(dht.put))
	}
	o.PublishTick(context.Background(), 100) // well within republish period
	if len(dht.put) != 1 {
		t.Fatalf("put count after second tick = %d, want 1 (rate limited)", len(dht.put))
	}
	o.PublishTick(context.Background(), 15_001)
	if len(dht.put) != 1 {
		t.Fatalf("put overwrote same key unexpectedly: %d", len(dht.put))
	}
}

func TestLookupTick_AcceptsValidRecordAndDials(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)

	ann := wire.DeviceAnnouncement{
		Version:    wire.DeviceAnnouncementVersion,
		DeviceCode: "remote-code",
		PeerID:     remotePID.String(),
		Addrs:      []string{"/ip4/5.6.7.8/udp/9000/quic"},
		UnixMS:     1000,
	}
	raw, _ := json.Marshal(ann)
	dht.get[RecordKey("remote-code")] = raw

	o := New(Config{
		Transport:       transport,
		DHT:             dht,
		Pending:         &fakePending{},
		Profile:         testProfile(),
		LocalDeviceCode: "my-code",
		LocalPeerID:     localPID,
	})
	o.AddTarget("remote-code")
	o.LookupTick(context.Background(), 1500)

	if len(transport.dialed[remotePID]) != 1 {
		t.Fatalf("dialed = %v, want exactly one dial", transport.dialed[remotePID])
	}
}

func TestLookupTick_DropsWrongVersion(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)

	ann := wire.DeviceAnnouncement{Version: 2, DeviceCode: "remote-code", PeerID: remotePID.String(), UnixMS: 1000}
	raw, _ := json.Marshal(ann)
	dht.get[RecordKey("remote-code")] = raw

	o := New(Config{Transport: transport, DHT: dht, Pending: &fakePending{}, Profile: testProfile(), LocalDeviceCode: "my-code", LocalPeerID: localPID})
	o.AddTarget("remote-code")
	o.LookupTick(context.Background(), 1500)

	if len(transport.dialed) != 0 {
		t.Fatalf("expected no dial for wrong-version record, got %v", transport.dialed)
	}
}

func TestLookupTick_DropsSelfAnnouncement(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)

	ann := wire.DeviceAnnouncement{Version: 1, DeviceCode: "remote-code", PeerID: localPID.String(), UnixMS: 1000}
	raw, _ := json.Marshal(ann)
	dht.get[RecordKey("remote-code")] = raw

	o := New(Config{Transport: transport, DHT: dht, Pending: &fakePending{}, Profile: testProfile(), LocalDeviceCode: "my-code", LocalPeerID: localPID})
	o.AddTarget("remote-code")
	o.LookupTick(context.Background(), 1500)

	if len(transport.dialed) != 0 {
		t.Fatal("expected self-announcement to be dropped")
	}
}

func TestLookupTick_DropsStaleRecord(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)

	ann := wire.DeviceAnnouncement{Version: 1, DeviceCode: "remote-code", PeerID: remotePID.String(), UnixMS: 0}
	raw, _ := json.Marshal(ann)
	dht.get[RecordKey("remote-code")] = raw

	profile := testProfile()
	o := New(Config{Transport: transport, DHT: dht, Pending: &fakePending{}, Profile: profile, LocalDeviceCode: "my-code", LocalPeerID: localPID})
	o.AddTarget("remote-code")
	o.LookupTick(context.Background(), profile.DeviceRecordFreshnessWindow.Milliseconds()+1)

	if len(transport.dialed) != 0 {
		t.Fatal("expected stale record to be dropped")
	}
}

func TestMaybeDial_ThrottledByCooldown(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)

	o := New(Config{Transport: transport, DHT: dht, Pending: &fakePending{}, Profile: testProfile(), LocalDeviceCode: "my-code", LocalPeerID: localPID})

	o.maybeDial(context.Background(), remotePID, "/ip4/1.2.3.4/udp/1/quic", 0)
	o.maybeDial(context.Background(), remotePID, "/ip4/1.2.3.4/udp/1/quic", 100)
	if len(transport.dialed[remotePID]) != 1 {
		t.Fatalf("dial count = %d, want 1 (cooldown)", len(transport.dialed[remotePID]))
	}
	o.maybeDial(context.Background(), remotePID, "/ip4/1.2.3.4/udp/1/quic", 2501)
	if len(transport.dialed[remotePID]) != 2 {
		t.Fatalf("dial count = %d, want 2 after cooldown elapses", len(transport.dialed[remotePID]))
	}
}

func TestMaybeDial_SkipsAlreadyConnected(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)
	transport.connected[remotePID] = true

	o := New(Config{Transport: transport, DHT: dht, Pending: &fakePending{}, Profile: testProfile(), LocalDeviceCode: "my-code", LocalPeerID: localPID})
	o.maybeDial(context.Background(), remotePID, "/ip4/1.2.3.4/udp/1/quic", 0)
	if len(transport.dialed) != 0 {
		t.Fatal("expected no dial for already-connected peer")
	}
}

func TestMaybeDial_SkipsPendingOutbound(t *testing.T) {
	transport := newFakeTransport()
	dht := newFakeDHT()
	localPID := genPeerID(t)
	remotePID := genPeerID(t)
	pending := &fakePending{has: map[peer.ID]bool{remotePID: true}}

	o := New(Config{Transport: transport, DHT: dht, Pending: pending, Profile: testProfile(), LocalDeviceCode: "my-code", LocalPeerID: localPID})
	o.maybeDial(context.Background(), remotePID, "/ip4/1.2.3.4/udp/1/quic", 0)
	if len(transport.dialed) != 0 {
		t.Fatal("expected no dial while pending outbound exists")
	}
}

func TestResolveAddr_AppendsP2PTail(t *testing.T) {
	pid := genPeerID(t)

	got := resolveAddr("/ip4/1.2.3.4/udp/9000/quic", pid.String())
	want := "/ip4/1.2.3.4/udp/9000/quic/p2p/" + pid.String()
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	already := want
	if resolveAddr(already, pid.String()) != already {
		t.Fatal("should not append a second tail")
	}
}

func TestResolveAddr_InvalidAddrReturnsUnchanged(t *testing.T) {
	if got := resolveAddr("not-a-multiaddr", "QmPeer"); got != "not-a-multiaddr" {
		t.Fatalf("got %q, want input returned unchanged", got)
	}
}
