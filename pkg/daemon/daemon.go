// Package daemon wires every other package into one running node: identity,
// trust store, replay cache, the libp2p host the DHT rides on, the ICE
// transport, local mdns discovery, the dial orchestrator, the control
// engine, and the IPC socket (spec §1 "a single-process core", §5 resource
// ownership). It owns the single driving loop every control.Engine method
// must be called from.
//
// Follows examples/common's shape (CreateNode/RunDevice): a thin
// construction function plus a run loop driven by a context and a signal
// channel, rather than a generic application framework.
package daemon

import (
	"context"
	"fmt"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pion/logging"

	"github.com/aetherlink/aetherlink/pkg/control"
	"github.com/aetherlink/aetherlink/pkg/corecfg"
	"github.com/aetherlink/aetherlink/pkg/discovery"
	"github.com/aetherlink/aetherlink/pkg/discoverydht"
	"github.com/aetherlink/aetherlink/pkg/discoverymdns"
	"github.com/aetherlink/aetherlink/pkg/identity"
	"github.com/aetherlink/aetherlink/pkg/ipc"
	"github.com/aetherlink/aetherlink/pkg/noncecache"
	"github.com/aetherlink/aetherlink/pkg/transportice"
	"github.com/aetherlink/aetherlink/pkg/trust"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

// Config configures a Daemon. IdentityFile, TrustStoreFile, and SocketPath
// are required; everything else has a usable zero value or profile default.
type Config struct {
	IdentityFile    string
	TrustStoreFile  string
	SocketPath      string
	TrustOnFirstUse bool

	// ListenAddr is the libp2p multiaddr the DHT's host listens on, e.g.
	// "/ip4/0.0.0.0/tcp/4001".
	ListenAddr string
	// ICEListenPort is the shared UDP port pkg/transportice's mux binds.
	// 0 picks an ephemeral port.
	ICEListenPort int
	STUNServers   []string
	TURNServers   []string
	TURNUsername  string
	TURNPassword  string

	BootstrapPeers []string
	DHTClientOnly  bool

	EnableMulticast bool
	MulticastPort   int

	// AutoRequestDeviceCodes are dialed and auto-session-requested on
	// startup, before any IPC PairDevice/ConnectSession call arrives (spec
	// §9 supplemented "--auto-request").
	AutoRequestDeviceCodes []string

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

// Daemon owns every long-lived component of one running node.
type Daemon struct {
	cfg Config
	log logging.LeveledLogger

	identity *identity.Key
	trust    *trust.Store
	replay   *noncecache.Cache

	host host.Host
	dht  *discoverydht.DHT
	ice  *transportice.Manager
	mc   *discoverymdns.Multicast

	discovery *discovery.Orchestrator
	engine    *control.Engine
	ipcServer *ipc.Server

	paired map[string]bool

	commands chan func()

	dhtHolder     *dhtHolder
	pendingHolder *pendingHolder
}

// dhtHolder defers binding the real discoverydht.DHT (which needs a running
// libp2p host, only available once Run starts) until after
// discovery.Orchestrator, which needs a discovery.DHT at construction time,
// already exists. PutRecord/GetRecord are only ever called from the Run
// loop's Tick handling, by which point dht is set.
type dhtHolder struct{ dht discovery.DHT }

func (h *dhtHolder) PutRecord(ctx context.Context, key string, value []byte) error {
	return h.dht.PutRecord(ctx, key, value)
}

func (h *dhtHolder) GetRecord(ctx context.Context, key string) ([]byte, error) {
	return h.dht.GetRecord(ctx, key)
}

// pendingHolder defers binding control.Engine (which needs a
// DiscoveryDriver at construction time) as discovery's
// PendingOutboundChecker until after the Engine exists.
type pendingHolder struct{ engine *control.Engine }

func (h *pendingHolder) HasPendingOutbound(peerID peer.ID) bool {
	if h.engine == nil {
		return false
	}
	return h.engine.HasPendingOutbound(peerID)
}

// New constructs every component but does not start any background
// goroutine or network listener; call Run to bring the node up.
func New(cfg Config) (*Daemon, error) {
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}

	key, err := identity.LoadOrCreate(cfg.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading identity: %w", err)
	}

	trustStore, err := trust.Load(cfg.TrustStoreFile)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading trust store: %w", err)
	}

	privKey, err := libp2pcrypto.UnmarshalEd25519PrivateKey(key.Priv)
	if err != nil {
		return nil, fmt.Errorf("daemon: converting identity key for libp2p host: %w", err)
	}
	listenAddr := cfg.ListenAddr
	if listenAddr == "" {
		listenAddr = "/ip4/0.0.0.0/tcp/0"
	}
	h, err := libp2p.New(libp2p.Identity(privKey), libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("daemon: creating libp2p host: %w", err)
	}

	iceMgr, err := transportice.NewManager(transportice.Config{
		LocalPeerID:   key.PeerID,
		STUNServers:   cfg.STUNServers,
		TURNServers:   cfg.TURNServers,
		TURNUsername:  cfg.TURNUsername,
		TURNPassword:  cfg.TURNPassword,
		ListenPort:    cfg.ICEListenPort,
		LoggerFactory: factory,
	})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("daemon: creating ICE transport: %w", err)
	}

	d := &Daemon{
		cfg:           cfg,
		log:           factory.NewLogger("daemon"),
		identity:      key,
		trust:         trustStore,
		replay:        noncecache.New(cfg.Auth.ReplayRetention.Milliseconds()),
		host:          h,
		ice:           iceMgr,
		paired:        make(map[string]bool),
		commands:      make(chan func()),
		dhtHolder:     &dhtHolder{},
		pendingHolder: &pendingHolder{},
	}

	d.discovery = discovery.New(discovery.Config{
		Transport:       iceMgr,
		DHT:             d.dhtHolder,
		Pending:         d.pendingHolder,
		Profile:         cfg.Profile,
		LocalDeviceCode: localDeviceCode(key.PeerID),
		LocalPeerID:     key.PeerID,
		LoggerFactory:   factory,
	})

	d.engine = control.New(control.Config{
		Identity:        key,
		LocalDeviceCode: localDeviceCode(key.PeerID),
		TrustStore:      trustStore,
		TrustStorePath:  cfg.TrustStoreFile,
		Replay:          d.replay,
		TrustOnFirstUse: cfg.TrustOnFirstUse,
		Discovery:       d.discovery,
		Transport:       iceMgr,
		Events:          daemonEventSink{d: d},
		Timing:          cfg.Timing,
		Profile:         cfg.Profile,
		Auth:            cfg.Auth,
		SupportedCodecs: cfg.SupportedCodecs,
		AllowRelay:      cfg.AllowRelay,
		MaxFPS:          cfg.MaxFPS,
		MaxWidth:        cfg.MaxWidth,
		MaxHeight:       cfg.MaxHeight,
		LoggerFactory:   factory,
	})
	d.pendingHolder.engine = d.engine

	if cfg.EnableMulticast {
		mc, err := discoverymdns.New(discoverymdns.Config{
			DeviceCode:    localDeviceCode(key.PeerID),
			PeerIDText:    key.PeerID.String(),
			Port:          cfg.MulticastPort,
			OnPeerFound:   d.onMulticastPeerFound,
			LoggerFactory: factory,
		})
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("daemon: creating mdns multicast: %w", err)
		}
		d.mc = mc
	}

	srv, err := ipc.NewServer(ipc.ServerConfig{
		SocketPath:    cfg.SocketPath,
		Handler:       d.handleIPCRequest,
		LoggerFactory: factory,
	})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("daemon: creating IPC server: %w", err)
	}
	d.ipcServer = srv

	for _, code := range cfg.AutoRequestDeviceCodes {
		d.engine.AddTargetDeviceCode(code)
	}

	return d, nil
}

// localDeviceCode derives a human-shareable device code from the node's own
// peer id. Real pairing UX would let an operator set a memorable code; this
// core has no naming step of its own (spec §9 open question), so it falls
// back to a short prefix of the peer id text.
func localDeviceCode(pid peer.ID) string {
	text := pid.String()
	if len(text) > 12 {
		return text[len(text)-12:]
	}
	return text
}

// Close releases the resources New acquired directly (the libp2p host and
// the ICE transport's UDP socket). Call it after Run returns.
func (d *Daemon) Close() error {
	_ = d.ice.Close()
	return d.host.Close()
}

func (d *Daemon) onMulticastPeerFound(peerIDText, deviceCode, addr string) {
	pid, err := peer.Decode(peerIDText)
	if err != nil {
		d.log.Warnf("daemon: mdns peer id %q does not parse: %v", peerIDText, err)
		return
	}
	d.ice.AddAddress(pid, addr)
}

// Run starts every background component and blocks in the single driving
// loop until ctx is canceled (spec §5 "every exported [engine] method must
// be called from the same driving loop").
func (d *Daemon) Run(ctx context.Context) error {
	dhtCtx, cancelDHT := context.WithCancel(ctx)
	defer cancelDHT()
	dhtAdapter, err := discoverydht.New(dhtCtx, discoverydht.Config{
		Host:           d.host,
		BootstrapPeers: d.cfg.BootstrapPeers,
		Client:         d.cfg.DHTClientOnly,
		LoggerFactory:  d.cfg.LoggerFactory,
	})
	if err != nil {
		return fmt.Errorf("daemon: starting DHT: %w", err)
	}
	d.dht = dhtAdapter
	d.dhtHolder.dht = dhtAdapter
	defer d.dht.Close()

	if d.mc != nil {
		if err := d.mc.Start(ctx); err != nil {
			d.log.Warnf("daemon: starting mdns multicast: %v", err)
		}
		defer d.mc.Stop()
	}

	if err := d.ipcServer.Start(); err != nil {
		return fmt.Errorf("daemon: starting IPC server: %w", err)
	}
	defer d.ipcServer.Close()

	ticker := time.NewTicker(d.cfg.Profile.TickInterval)
	defer ticker.Stop()

	d.log.Infof("daemon: node %s listening (ice=%s)", d.identity.PeerID, joinAddrs(d.ice.LocalAddrs()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-d.ice.Events():
			if !ok {
				return fmt.Errorf("daemon: ICE transport closed unexpectedly")
			}
			d.handleTransportEvent(ctx, ev)
		case now := <-ticker.C:
			d.engine.Tick(ctx, now.UnixMilli())
		case cmd := <-d.commands:
			cmd()
		}
	}
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ","
		}
		out += a
	}
	return out
}

func (d *Daemon) handleTransportEvent(ctx context.Context, ev transportice.Event) {
	now := time.Now().UnixMilli()
	switch e := ev.(type) {
	case transportice.Connected:
		d.engine.TransportConnected(ctx, e.PeerID, now)
	case transportice.Disconnected:
		d.engine.TransportDisconnected(e.PeerID, now)
	case transportice.Request:
		reply, err := d.engine.ControlRequest(ctx, e.PeerID, e.Payload, now)
		if err != nil {
			d.log.Warnf("daemon: handling request from %s: %v", e.PeerID, err)
			return
		}
		if reply != nil {
			if _, err := d.ice.Send(ctx, e.PeerID, reply); err != nil {
				d.log.Warnf("daemon: replying to %s: %v", e.PeerID, err)
			}
		}
	case transportice.Response:
		if err := d.engine.ControlResponse(e.PeerID, e.OutboundID, e.Payload, now); err != nil {
			d.log.Warnf("daemon: handling response from %s: %v", e.PeerID, err)
		}
	case transportice.OutboundFailure:
		d.engine.ControlOutboundFailure(e.PeerID, e.OutboundID, e.Err)
	}
}

// handleIPCRequest runs on the Server's per-connection goroutine (spec §6),
// so it hands off to the driving loop via commands and blocks on a result
// channel rather than touching d.engine directly.
func (d *Daemon) handleIPCRequest(req *ipc.Request) *ipc.Response {
	result := make(chan *ipc.Response, 1)
	d.commands <- func() {
		result <- d.dispatch(req)
	}
	return <-result
}

// dispatch runs on the driving loop and may freely call d.engine.
func (d *Daemon) dispatch(req *ipc.Request) *ipc.Response {
	switch {
	case req.StartDaemon != nil:
		// The node this process wires up is already running by the time
		// the IPC server accepts connections (spec §9: process
		// supervision is out of this core's scope), so StartDaemon only
		// acknowledges that fact.
		return &ipc.Response{Ack: &ipc.Ack{OK: true, Detail: "already running"}}

	case req.StopDaemon != nil:
		return &ipc.Response{Ack: &ipc.Ack{OK: true, Detail: "shutdown requested; stop the process to exit"}}

	case req.DiscoverDevices != nil:
		return &ipc.Response{DeviceList: &ipc.DeviceListResponse{Devices: d.deviceList()}}

	case req.PairDevice != nil:
		code := req.PairDevice.DeviceCode
		if req.PairDevice.Approved {
			d.paired[code] = true
			d.engine.AddTargetDeviceCode(code)
		} else {
			delete(d.paired, code)
			d.engine.RemoveTargetDeviceCode(code)
		}
		return &ipc.Response{Ack: &ipc.Ack{OK: true}}

	case req.ConnectSession != nil:
		d.engine.AddTargetDeviceCode(req.ConnectSession.DeviceCode)
		return &ipc.Response{SessionConnect: &ipc.SessionConnectResponse{Accepted: false}}

	case req.GetSessionStats != nil:
		return &ipc.Response{SessionStats: d.sessionStats(req.GetSessionStats.SessionID)}

	default:
		return &ipc.Response{Ack: &ipc.Ack{OK: false, Detail: "unrecognized request"}}
	}
}

func (d *Daemon) deviceList() []ipc.DeviceInfo {
	records := d.trust.Records()
	out := make([]ipc.DeviceInfo, 0, len(records))
	for _, r := range records {
		out = append(out, ipc.DeviceInfo{
			DeviceCode:     r.DeviceCode,
			PeerID:         r.PeerID,
			LastSeenUnixMS: r.LastSeenUnixMS,
			Trusted:        true,
			Paired:         d.paired[r.DeviceCode],
		})
	}
	return out
}

func (d *Daemon) sessionStats(sessionID string) *ipc.SessionStatsResponse {
	peerID, ok := d.engine.PeerIDForSession(sessionID)
	if !ok {
		return &ipc.SessionStatsResponse{}
	}
	stats, ok := d.engine.Stats(peerID)
	if !ok {
		return &ipc.SessionStatsResponse{}
	}
	return &ipc.SessionStatsResponse{RTTMS: stats.RTTMS, UsingRelay: stats.UsingRelay}
}

// daemonEventSink forwards control.Engine notifications onto the IPC
// broadcast channel (spec §6 events "session_state", "error").
type daemonEventSink struct{ d *Daemon }

func (s daemonEventSink) SessionState(peerID peer.ID, sessionID, state, detail string) {
	s.d.ipcServer.Broadcast(&ipc.Event{SessionState: &ipc.SessionStateEvent{
		SessionID: sessionID,
		State:     state,
		Detail:    detail,
	}})
}

func (s daemonEventSink) Error(code, detail string) {
	s.d.ipcServer.Broadcast(&ipc.Event{Error: &ipc.ErrorEvent{Code: code, Detail: detail}})
}
