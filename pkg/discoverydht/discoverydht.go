package discoverydht

import (
	"context"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pion/logging"
)

// bootstrapConnectTimeout bounds each individual dial attempted while
// connecting to a configured bootstrap peer.
const bootstrapConnectTimeout = 10 * time.Second

// Config configures a DHT.
type Config struct {
	// Host is the libp2p host the DHT protocol handlers attach to.
	// Required.
	Host host.Host

	// BootstrapPeers seeds the routing table. An empty node with no
	// bootstrap peers can still serve records to anyone who dials it
	// directly, but will not discover the wider network.
	BootstrapPeers []string

	// Client runs the DHT in client-only mode (never stores records on
	// behalf of others, spec §9 Non-goal "running a supernode"). Server
	// mode (the default) both serves and uses the table.
	Client bool

	LoggerFactory logging.LoggerFactory
}

// DHT wraps a Kademlia routing table and implements pkg/discovery.DHT's
// PutRecord/GetRecord over it.
type DHT struct {
	impl *dht.IpfsDHT
	log  logging.LeveledLogger
}

// New creates and bootstraps a DHT bound to cfg.Host.
func New(ctx context.Context, cfg Config) (*DHT, error) {
	if cfg.Host == nil {
		return nil, fmt.Errorf("discoverydht: Host is required")
	}
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}

	mode := dht.ModeServer
	if cfg.Client {
		mode = dht.ModeClient
	}

	impl, err := dht.New(ctx, cfg.Host,
		dht.Mode(mode),
		dht.NamespacedValidator(Namespace, deviceRecordValidator{}),
	)
	if err != nil {
		return nil, fmt.Errorf("discoverydht: creating routing table: %w", err)
	}

	d := &DHT{impl: impl, log: factory.NewLogger("discoverydht")}
	d.connectBootstrapPeers(ctx, cfg.Host, cfg.BootstrapPeers)

	if err := impl.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("discoverydht: bootstrapping: %w", err)
	}

	return d, nil
}

// connectBootstrapPeers dials each configured bootstrap address once,
// best-effort: a node with no reachable bootstrap peers still serves
// records to anyone who dials it directly (spec §9 "an empty bootstrap
// list is valid").
func (d *DHT) connectBootstrapPeers(ctx context.Context, h host.Host, addrs []string) {
	for _, addr := range addrs {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			d.log.Warnf("bootstrap address %q: %v", addr, err)
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, bootstrapConnectTimeout)
		err = h.Connect(dialCtx, *info)
		cancel()
		if err != nil {
			d.log.Warnf("connecting to bootstrap peer %s: %v", info.ID, err)
			continue
		}
		d.log.Infof("connected to bootstrap peer %s", info.ID)
	}
}

// PutRecord stores value under key (pkg/discovery.DHT).
func (d *DHT) PutRecord(ctx context.Context, key string, value []byte) error {
	if err := d.impl.PutValue(ctx, key, value); err != nil {
		return fmt.Errorf("discoverydht: putting %q: %w", key, err)
	}
	return nil
}

// GetRecord looks up key (pkg/discovery.DHT).
func (d *DHT) GetRecord(ctx context.Context, key string) ([]byte, error) {
	value, err := d.impl.GetValue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("discoverydht: getting %q: %w", key, err)
	}
	return value, nil
}

// Close tears down the routing table.
func (d *DHT) Close() error {
	return d.impl.Close()
}
