// Package transportice implements the node's transport substrate on top of
// ICE (github.com/pion/ice/v4): host, server-reflexive (STUN), and relay
// (TURN) candidates gathered and raced per RFC 8445, giving the direct /
// hole-punch / relay dial phases the connection state machine expects
// (spec §4.5, §6 "Transport substrate").
//
// AetherLink has no separate signaling channel: the only rendezvous surface
// is the DHT device record (pkg/discovery). Real ICE signals ufrag/pwd and
// the full candidate list out of band before gathering starts; here both
// ends instead derive the same ICE credentials from the sorted pair of peer
// ids (see credentials.go) and exchange only a single host:port contact
// point through the device record, added as a seed remote candidate. This
// is an adaptation of RFC 8445 to AetherLink's constraints, not a literal
// implementation of it.
package transportice

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pion/ice/v4"
	"github.com/pion/logging"
)

// Config configures a Manager.
type Config struct {
	// LocalPeerID is this node's own peer id, used to derive per-link ICE
	// credentials and to pick the controlling/controlled role.
	LocalPeerID peer.ID

	// STUNServers are "stun:host:port" URLs used for server-reflexive
	// candidate gathering.
	STUNServers []string
	// TURNServers are "turn:host:port" URLs used for relay candidates.
	// TURNUsername/TURNPassword apply to all of them.
	TURNServers  []string
	TURNUsername string
	TURNPassword string

	// ListenPort is the UDP port the shared mux listens on. 0 picks an
	// ephemeral port.
	ListenPort int

	// EventBuffer sizes the channel returned by Events. 0 uses a default.
	EventBuffer int

	LoggerFactory logging.LoggerFactory
}

// Event is something the Manager's background ICE/read-loop goroutines
// observed that the single-threaded control loop (spec §5) must act on.
// Concrete types: Connected, Disconnected, Request, Response,
// OutboundFailure.
type Event interface {
	isEvent()
}

// Connected reports a peer's control link finishing its ICE handshake.
type Connected struct{ PeerID peer.ID }

// Disconnected reports a peer's control link closing.
type Disconnected struct {
	PeerID peer.ID
	Reason string
}

// Request carries an inbound frame that expects a reply (spec §4.7
// ControlRequest: SessionRequest or Ping). The caller answers it with
// Manager.Send using the same PeerID.
type Request struct {
	PeerID  peer.ID
	Payload []byte
}

// Response carries an inbound frame that answers a previous Send (spec
// §4.7 ControlResponse: SessionAccept, SessionReject, or Pong).
type Response struct {
	PeerID     peer.ID
	OutboundID string
	Payload    []byte
}

// OutboundFailure reports a Send whose delivery failed after Send itself
// returned successfully (spec §4.7 ControlOutboundFailure).
type OutboundFailure struct {
	PeerID     peer.ID
	OutboundID string
	Err        error
}

func (Connected) isEvent()      {}
func (Disconnected) isEvent()   {}
func (Request) isEvent()        {}
func (Response) isEvent()       {}
func (OutboundFailure) isEvent() {}

// link is the per-peer ICE agent, its established connection once
// negotiated, and the bookkeeping needed to frame control messages over it.
type link struct {
	peerID peer.ID
	agent  *ice.Agent

	mu         sync.Mutex
	conn       net.Conn
	nextID     uint64
	lastOutID  string
	closed     bool
}

// Manager implements discovery.Transport and control.ControlTransport on
// top of a pool of per-peer ice.Agent instances sharing one UDP socket:
// config validation in the constructor, a mutex-guarded connection table,
// and background goroutines feeding a single handler rather than calling
// back directly.
type Manager struct {
	cfg Config
	log logging.LeveledLogger

	conn net.PacketConn
	mux  *ice.MultiUDPMuxDefault

	mu     sync.Mutex
	links  map[peer.ID]*link
	closed bool

	events chan Event
}

// NewManager opens the shared UDP socket and returns a Manager ready to
// gather and race ICE candidates per peer. Callers drain Events() from the
// single driving loop described in spec §5.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.LocalPeerID == "" {
		return nil, fmt.Errorf("transportice: LocalPeerID is required")
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	factory := cfg.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}

	addr := &net.UDPAddr{Port: cfg.ListenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transportice: opening udp socket: %w", err)
	}

	mux := ice.NewMultiUDPMuxDefault(ice.NewUDPMuxDefault(ice.UDPMuxParams{
		UDPConn: conn,
		Logger:  factory.NewLogger("transportice-mux"),
	}))

	return &Manager{
		cfg:    cfg,
		log:    factory.NewLogger("transportice"),
		conn:   conn,
		mux:    mux,
		links:  make(map[peer.ID]*link),
		events: make(chan Event, cfg.EventBuffer),
	}, nil
}

// Events returns the channel the Manager's background goroutines publish
// Connected/Disconnected/Request/Response/OutboundFailure events to.
func (m *Manager) Events() <-chan Event { return m.events }

// LocalAddrs reports this node's single UDP contact point, published in
// device announcements (spec §4.6) as the seed remote candidate peers dial.
func (m *Manager) LocalAddrs() []string {
	return []string{m.conn.LocalAddr().String()}
}

// IsConnected reports whether peerID currently has an established link.
func (m *Manager) IsConnected(peerID peer.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[peerID]
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil && !l.closed
}

// AddAddress records addr as peerID's contact point. Unlike a conventional
// transport, ICE needs the address at gather time, not merely as a dial
// target, so this just ensures a link (and its agent) exist; the real use
// happens in Dial.
func (m *Manager) AddAddress(peerID peer.ID, addr string) {
	l, isNew := m.ensureLink(peerID)
	if !isNew {
		return
	}
	if err := m.startGathering(l, stripPeerSuffix(addr)); err != nil {
		m.log.Warnf("peer %s: starting ICE gathering: %v", peerID, err)
	}
}

// Dial drives peerID's link to completion: it gathers local candidates,
// seeds addr as a remote host candidate, and performs the controlling or
// controlled half of the ICE handshake depending on the deterministic
// peer-id tie-break (spec §6 "Transport substrate": direct / hole-punch /
// relay candidates are raced internally by the ICE agent; only the
// outcome, connected or not, is visible to the caller).
func (m *Manager) Dial(ctx context.Context, peerID peer.ID, addr string) error {
	l, isNew := m.ensureLink(peerID)
	if isNew {
		if err := m.startGathering(l, stripPeerSuffix(addr)); err != nil {
			return fmt.Errorf("transportice: starting ICE gathering for %s: %w", peerID, err)
		}
	}

	controlling := isControlling(m.cfg.LocalPeerID, peerID)
	_, remotePwd := credentialsFor(m.cfg.LocalPeerID, peerID)
	remoteUfrag, _ := credentialsFor(m.cfg.LocalPeerID, peerID)

	var conn net.Conn
	var err error
	if controlling {
		conn, err = l.agent.Dial(ctx, remoteUfrag, remotePwd)
	} else {
		conn, err = l.agent.Accept(ctx, remoteUfrag, remotePwd)
	}
	if err != nil {
		return fmt.Errorf("transportice: ICE handshake with %s: %w", peerID, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	go m.readLoop(peerID, l, conn)
	m.publish(Connected{PeerID: peerID})
	return nil
}

// credentialsFor returns the shared ufrag/pwd both ends of a (local,
// remote) pair compute independently.
func credentialsFor(local, remote peer.ID) (ufrag, pwd string) {
	return deriveICECredentials(local, remote)
}

// isControlling picks the lexicographically-first peer id as the
// controlling (dialing) side so both ends agree without negotiation.
func isControlling(local, remote peer.ID) bool {
	first, _ := sortPeers(local, remote)
	return first == local
}

func (m *Manager) ensureLink(peerID peer.ID) (l *link, isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.links[peerID]; ok {
		return existing, false
	}
	l = &link{peerID: peerID}
	m.links[peerID] = l
	return l, true
}

func (m *Manager) startGathering(l *link, seedAddr string) error {
	ufrag, pwd := credentialsFor(m.cfg.LocalPeerID, l.peerID)

	urls, err := m.parseServerURLs()
	if err != nil {
		return err
	}

	agent, err := ice.NewAgent(&ice.AgentConfig{
		UDPMux:        m.mux,
		Urls:          urls,
		NetworkTypes:  []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		LocalUfrag:    ufrag,
		LocalPwd:      pwd,
		LoggerFactory: m.loggerFactory(),
	})
	if err != nil {
		return fmt.Errorf("creating ICE agent: %w", err)
	}
	l.agent = agent

	_ = agent.OnConnectionStateChange(func(state ice.ConnectionState) {
		if state == ice.ConnectionStateFailed || state == ice.ConnectionStateDisconnected {
			m.teardown(l.peerID, state.String())
		}
	})

	if seedAddr != "" {
		cand, err := hostCandidate(seedAddr)
		if err != nil {
			m.log.Warnf("peer %s: seed address %q did not parse as a host candidate: %v", l.peerID, seedAddr, err)
		} else if err := agent.AddRemoteCandidate(cand); err != nil {
			m.log.Warnf("peer %s: adding seed remote candidate: %v", l.peerID, err)
		}
	}

	if err := agent.GatherCandidates(); err != nil {
		return fmt.Errorf("gathering candidates: %w", err)
	}
	return nil
}

func (m *Manager) parseServerURLs() ([]*ice.URL, error) {
	urls := make([]*ice.URL, 0, len(m.cfg.STUNServers)+len(m.cfg.TURNServers))
	for _, raw := range m.cfg.STUNServers {
		u, err := ice.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing STUN url %q: %w", raw, err)
		}
		urls = append(urls, u)
	}
	for _, raw := range m.cfg.TURNServers {
		u, err := ice.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing TURN url %q: %w", raw, err)
		}
		u.Username = m.cfg.TURNUsername
		u.Password = m.cfg.TURNPassword
		urls = append(urls, u)
	}
	return urls, nil
}

func (m *Manager) loggerFactory() logging.LoggerFactory {
	if m.cfg.LoggerFactory != nil {
		return m.cfg.LoggerFactory
	}
	return logging.NewDefaultLoggerFactory()
}

// readLoop decodes length-prefixed frames off conn and classifies each as
// a Request or a Response by its wire.ControlMessage kind, so the single
// driving loop can route it into the control engine (spec §4.7).
func (m *Manager) readLoop(peerID peer.ID, l *link, conn net.Conn) {
	for {
		payload, err := readFrame(conn)
		if err != nil {
			m.teardown(peerID, err.Error())
			return
		}
		if isRequestFrame(payload) {
			m.publish(Request{PeerID: peerID, Payload: payload})
			continue
		}
		l.mu.Lock()
		outboundID := l.lastOutID
		l.mu.Unlock()
		m.publish(Response{PeerID: peerID, OutboundID: outboundID, Payload: payload})
	}
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn("transportice: event channel full, dropping event")
	}
}

// Send frames and writes payload to peerID's established link, returning
// an id the caller can later match against a Response or OutboundFailure.
func (m *Manager) Send(ctx context.Context, peerID peer.ID, payload []byte) (string, error) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	m.mu.Unlock()
	if !ok {
		return "", ErrNoPeerAddress
	}

	l.mu.Lock()
	if l.conn == nil || l.closed {
		l.mu.Unlock()
		return "", ErrNotConnected
	}
	l.nextID++
	id := fmt.Sprintf("%s-%d", peerID, l.nextID)
	conn := l.conn
	l.mu.Unlock()

	if err := writeFrame(conn, payload); err != nil {
		m.publish(OutboundFailure{PeerID: peerID, OutboundID: id, Err: err})
		return "", fmt.Errorf("transportice: sending to %s: %w", peerID, err)
	}

	l.mu.Lock()
	l.lastOutID = id
	l.mu.Unlock()
	return id, nil
}

// Disconnect closes peerID's link.
func (m *Manager) Disconnect(peerID peer.ID) {
	m.teardown(peerID, "disconnect requested")
}

func (m *Manager) teardown(peerID peer.ID, reason string) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	if ok {
		delete(m.links, peerID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	l.mu.Lock()
	alreadyClosed := l.closed
	l.closed = true
	conn := l.conn
	l.mu.Unlock()
	if alreadyClosed {
		return
	}

	if conn != nil {
		_ = conn.Close()
	}
	if l.agent != nil {
		_ = l.agent.Close()
	}
	m.publish(Disconnected{PeerID: peerID, Reason: reason})
}

// Close shuts down every link and the shared socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	peerIDs := make([]peer.ID, 0, len(m.links))
	for id := range m.links {
		peerIDs = append(peerIDs, id)
	}
	m.mu.Unlock()

	sort.Slice(peerIDs, func(i, j int) bool { return peerIDs[i] < peerIDs[j] })
	for _, id := range peerIDs {
		m.teardown(id, "manager closing")
	}
	close(m.events)
	return m.conn.Close()
}
