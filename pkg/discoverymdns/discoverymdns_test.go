package discoverymdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

type fakeServer struct{ shutdown bool }

func (f *fakeServer) Shutdown() { f.shutdown = true }

type fakeFactory struct {
	registered *fakeServer
	gotTXT     []string
}

func (f *fakeFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (mdnsServer, error) {
	f.gotTXT = txt
	f.registered = &fakeServer{}
	return f.registered, nil
}

type fakeBrowser struct {
	entries []*zeroconf.ServiceEntry
}

func (f *fakeBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go func() {
		for _, e := range f.entries {
			entries <- e
		}
		<-ctx.Done()
	}()
	return nil
}

func TestStart_RegistersOwnServiceWithTXT(t *testing.T) {
	factory := &fakeFactory{}
	browser := &fakeBrowser{}
	m, err := New(Config{
		DeviceCode:    "my-code",
		PeerIDText:    "QmLocalPeer",
		Port:          9000,
		ServerFactory: factory,
		Browser:       browser,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if factory.registered == nil {
		t.Fatal("expected service to be registered")
	}
	found := map[string]bool{}
	for _, kv := range factory.gotTXT {
		found[kv] = true
	}
	if !found["device_code=my-code"] || !found["peer_id=QmLocalPeer"] {
		t.Fatalf("txt records missing expected fields: %v", factory.gotTXT)
	}
}

func TestConsume_SkipsSelfAndEmptyPeerID(t *testing.T) {
	found := make(chan string, 4)
	factory := &fakeFactory{}
	browser := &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		{
			ServiceRecord: zeroconf.ServiceRecord{},
			AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
			Text:          []string{"peer_id=QmLocalPeer", "device_code=my-code"},
			Port:          9000,
		},
		{
			ServiceRecord: zeroconf.ServiceRecord{},
			AddrIPv4:      []net.IP{net.ParseIP("10.0.0.6")},
			Text:          []string{"peer_id=QmRemotePeer", "device_code=remote-code"},
			Port:          9001,
		},
	}}

	m, err := New(Config{
		DeviceCode:    "my-code",
		PeerIDText:    "QmLocalPeer",
		ServerFactory: factory,
		Browser:       browser,
		OnPeerFound: func(peerIDText, deviceCode, addr string) {
			found <- peerIDText + "|" + deviceCode + "|" + addr
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	select {
	case entry := <-found:
		if entry != "QmRemotePeer|remote-code|/ip4/10.0.0.6/udp/9001/quic" {
			t.Fatalf("unexpected entry: %s", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer discovery callback")
	}

	select {
	case entry := <-found:
		t.Fatalf("unexpected second callback (self should be skipped): %s", entry)
	default:
	}
}
