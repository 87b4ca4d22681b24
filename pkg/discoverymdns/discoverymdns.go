// Package discoverymdns implements the optional local multicast discovery
// capability (spec §4.6, §6 "Local multicast discovery") on top of
// grandcat/zeroconf, adapted from the DNS-SD advertiser/resolver pattern:
// instead of Matter commissionable/operational TXT records, it advertises
// and resolves AetherLink device announcements.
package discoverymdns

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/aetherlink/aetherlink/pkg/discovery"
)

// ServiceType is the DNS-SD service this package advertises under.
const ServiceType = "_aetherlink._udp"

// DefaultDomain is the mDNS domain services are registered in.
const DefaultDomain = "local."

// mdnsServer is the subset of *zeroconf.Server this package depends on,
// allowing a fake in tests.
type mdnsServer interface {
	Shutdown()
}

// serverFactory creates mdnsServer instances; the production
// implementation is grandcat/zeroconf.
type serverFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (mdnsServer, error)
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (mdnsServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// mdnsBrowser is the subset of *zeroconf.Resolver this package depends on.
type mdnsBrowser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfBrowser struct{ resolver *zeroconf.Resolver }

func newZeroconfBrowser() (*zeroconfBrowser, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfBrowser{resolver: r}, nil
}

func (z *zeroconfBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// Config configures a Multicast adapter.
type Config struct {
	// DeviceCode and PeerIDText are advertised in TXT records so peers on
	// the local network can resolve this node without a DHT round trip.
	DeviceCode string
	PeerIDText string
	Port       int

	Interfaces []net.Interface

	// OnPeerFound is invoked for every remote announcement seen, with the
	// resolved multiaddr-shaped address (spec §4.6: "feeds new (peer_id,
	// address) pairs into the transport address book").
	OnPeerFound func(peerIDText, deviceCode, addr string)

	ServerFactory serverFactory
	Browser       mdnsBrowser
	LoggerFactory logging.LoggerFactory
}

// Multicast implements discovery.Multicast over local mDNS broadcast.
type Multicast struct {
	config  Config
	factory serverFactory
	browser mdnsBrowser
	log     logging.LeveledLogger

	mu       sync.Mutex
	server   mdnsServer
	cancel   context.CancelFunc
}

var _ discovery.Multicast = (*Multicast)(nil)

// New constructs a Multicast adapter.
func New(config Config) (*Multicast, error) {
	factory := config.ServerFactory
	if factory == nil {
		factory = zeroconfServerFactory{}
	}
	browser := config.Browser
	if browser == nil {
		b, err := newZeroconfBrowser()
		if err != nil {
			return nil, fmt.Errorf("discoverymdns: creating resolver: %w", err)
		}
		browser = b
	}
	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Multicast{
		config:  config,
		factory: factory,
		browser: browser,
		log:     loggerFactory.NewLogger("discoverymdns"),
	}, nil
}

// Start registers this node's own service and begins browsing for peers
// (spec discovery.Multicast interface).
func (m *Multicast) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.server != nil {
		m.mu.Unlock()
		return fmt.Errorf("discoverymdns: already started")
	}
	txt := []string{
		"device_code=" + m.config.DeviceCode,
		"peer_id=" + m.config.PeerIDText,
	}
	server, err := m.factory.Register(instanceName(m.config.PeerIDText), ServiceType, DefaultDomain, m.config.Port, txt, m.config.Interfaces)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("discoverymdns: registering service: %w", err)
	}
	m.server = server
	browseCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go m.consume(entries)
	if err := m.browser.Browse(browseCtx, ServiceType, DefaultDomain, entries); err != nil {
		m.log.Warnf("browsing for peers: %v", err)
	}
	return nil
}

func (m *Multicast) consume(entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		peerIDText, deviceCode := parseTXT(entry.Text)
		if peerIDText == "" || peerIDText == m.config.PeerIDText {
			continue
		}
		for _, ip := range entry.AddrIPv4 {
			addr := fmt.Sprintf("/ip4/%s/udp/%d/quic", ip.String(), entry.Port)
			if m.config.OnPeerFound != nil {
				m.config.OnPeerFound(peerIDText, deviceCode, addr)
			}
		}
	}
}

// Stop shuts down the advertised service and cancels the browse.
func (m *Multicast) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}
}

func instanceName(peerIDText string) string {
	if len(peerIDText) > 32 {
		return peerIDText[:32]
	}
	return peerIDText
}

func parseTXT(txt []string) (peerIDText, deviceCode string) {
	for _, kv := range txt {
		switch {
		case len(kv) > len("peer_id=") && kv[:len("peer_id=")] == "peer_id=":
			peerIDText = kv[len("peer_id="):]
		case len(kv) > len("device_code=") && kv[:len("device_code=")] == "device_code=":
			deviceCode = kv[len("device_code="):]
		}
	}
	return peerIDText, deviceCode
}

