package transportice

import (
	"fmt"
	"net"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/pion/ice/v4"

	"github.com/aetherlink/aetherlink/pkg/wire"
)

// stripPeerSuffix undoes discovery.resolveAddr's "/p2p/<peer id>" suffix,
// which it appends to any announcement address lacking one, by splitting
// the trailing multiaddr component off rather than string-matching.
func stripPeerSuffix(addr string) string {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return normalizeAddr(addr)
	}
	rest, last := ma.SplitLast(maddr)
	if last.Protocol().Code == ma.P_P2P {
		maddr = rest
	}
	return normalizeAddr(maddr.String())
}

// normalizeAddr accepts either a plain "host:port" contact point (what
// LocalAddrs publishes) or a multiaddr-shaped "/ip4/<ip>/udp/<port>/..."
// string (what pkg/discoverymdns resolves local peers to) and returns
// "host:port" either way.
func normalizeAddr(addr string) string {
	if !strings.HasPrefix(addr, "/") {
		return addr
	}
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return addr
	}

	var host string
	for _, proto := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := maddr.ValueForProtocol(proto); err == nil {
			host = v
			break
		}
	}

	var port string
	for _, proto := range []int{ma.P_UDP, ma.P_TCP} {
		if v, err := maddr.ValueForProtocol(proto); err == nil {
			port = v
			break
		}
	}

	if host == "" || port == "" {
		return addr
	}
	return net.JoinHostPort(host, port)
}

// hostCandidate builds an SDP candidate-attribute string for a bare
// "host:port" contact point learned from a device announcement and parses
// it back into an ice.Candidate, so it can seed AddRemoteCandidate without
// a real signaling exchange.
func hostCandidate(hostport string) (ice.Candidate, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("splitting host:port: %w", err)
	}
	attr := fmt.Sprintf("candidate:1 1 udp 2130706431 %s %s typ host", host, portStr)
	return ice.UnmarshalCandidate(attr)
}

// isRequestFrame reports whether payload decodes to a ControlMessage kind
// that expects a synchronous reply (spec §4.7 ControlRequest).
func isRequestFrame(payload []byte) bool {
	msg, err := wire.UnmarshalControlMessage(payload)
	if err != nil {
		return false
	}
	switch msg.Kind() {
	case "SessionRequest", "Ping":
		return true
	default:
		return false
	}
}
