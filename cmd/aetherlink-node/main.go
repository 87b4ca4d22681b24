// Command aetherlink-node runs one control-plane node: identity, trust
// store, ICE transport, DHT-backed discovery, optional local multicast,
// the control session engine, and an IPC socket for a local control tool
// (spec §1, §6, §9 supplemented "CLI surface parity with aetherlink-node's
// Args").
//
// Follows the style of cmd/matter-light-device and examples/common: a
// thin main() that parses flags with the standard library, builds a
// config, and blocks on a signal-canceled context.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/aetherlink/aetherlink/pkg/corecfg"
	"github.com/aetherlink/aetherlink/pkg/daemon"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

type stringList []string

func (l *stringList) String() string { return fmt.Sprintf("%v", []string(*l)) }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	timing := corecfg.DefaultTimingProfile()
	profile := corecfg.DefaultEngineProfile()
	auth := corecfg.DefaultSessionAuthProfile()

	var (
		listenAddr      string
		iceListenPort   int
		socketPath      string
		identityFile    string
		trustStoreFile  string
		trustOnFirstUse bool
		enableMulticast bool
		multicastPort   int
		dhtClientOnly   bool

		sessionRequestTimeoutMS     int64
		sessionRequestMaxAttempts  int
		deviceLookupIntervalMS     int64
		deviceRecordRepublishMS    int64
		disableDeviceRecordPublish bool
		controlKeepaliveIntervalMS int64
		controlKeepaliveTimeoutMS  int64
		controlKeepaliveMaxMisses  uint

		stunServers    stringList
		turnServers    stringList
		turnUsername   string
		turnPassword   string
		bootstrapPeers stringList
		autoRequest    stringList
		connectCodes   stringList
	)

	flag.StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/tcp/0", "libp2p multiaddr the DHT host listens on")
	flag.IntVar(&iceListenPort, "ice-port", 0, "UDP port the ICE transport's shared mux listens on (0 = ephemeral)")
	flag.StringVar(&socketPath, "socket", "/tmp/aetherlink.sock", "path to the IPC Unix socket")
	flag.StringVar(&identityFile, "identity-file", "aetherlink.key", "path to the persisted identity key")
	flag.StringVar(&trustStoreFile, "trust-store-file", "aetherlink-trust.json", "path to the persisted trust store")
	flag.BoolVar(&trustOnFirstUse, "trust-on-first-use", false, "trust a device code's first observed peer binding")
	flag.BoolVar(&enableMulticast, "enable-mdns", false, "enable local mDNS discovery in addition to the DHT")
	flag.IntVar(&multicastPort, "mdns-port", 0, "port advertised in mDNS announcements")
	flag.BoolVar(&dhtClientOnly, "dht-client-only", false, "run the DHT in client-only mode")

	flag.Var(&stunServers, "dial", "STUN server URL to gather ICE candidates through (repeatable)")
	flag.Var(&turnServers, "turn", "TURN server URL for relay candidates (repeatable)")
	flag.StringVar(&turnUsername, "turn-username", "", "TURN server username")
	flag.StringVar(&turnPassword, "turn-password", "", "TURN server password")
	flag.Var(&bootstrapPeers, "bootstrap", "DHT bootstrap peer multiaddr (repeatable)")
	flag.Var(&autoRequest, "auto-request", "device code to auto-dial and auto-session-request at startup (repeatable)")
	flag.Var(&connectCodes, "connect-device-code", "device code to auto-dial and auto-session-request at startup (repeatable, alias of --auto-request)")

	flag.Int64Var(&sessionRequestTimeoutMS, "session-request-timeout-ms", profile.SessionRequestTimeout.Milliseconds(), "session request retry timeout")
	flag.IntVar(&sessionRequestMaxAttempts, "session-request-max-attempts", profile.SessionRequestMaxAttempts, "session request max attempts")
	flag.Int64Var(&deviceLookupIntervalMS, "device-lookup-interval-ms", profile.DeviceLookupInterval.Milliseconds(), "device record lookup interval")
	flag.Int64Var(&deviceRecordRepublishMS, "device-record-republish-ms", profile.DeviceRecordRepublishPeriod.Milliseconds(), "device record republish period")
	flag.BoolVar(&disableDeviceRecordPublish, "disable-device-record-publish", profile.DisableDeviceRecordPublish, "never publish this node's own device record")
	flag.Int64Var(&controlKeepaliveIntervalMS, "control-keepalive-interval-ms", profile.KeepaliveInterval.Milliseconds(), "keepalive ping interval")
	flag.Int64Var(&controlKeepaliveTimeoutMS, "control-keepalive-timeout-ms", profile.KeepaliveTimeout.Milliseconds(), "keepalive ping timeout")
	flag.UintVar(&controlKeepaliveMaxMisses, "control-keepalive-max-misses", uint(profile.KeepaliveMaxConsecutiveMiss), "consecutive missed keepalives before the session is dropped")

	flag.Parse()

	profile.SessionRequestTimeout = time.Duration(sessionRequestTimeoutMS) * time.Millisecond
	profile.SessionRequestMaxAttempts = sessionRequestMaxAttempts
	profile.DeviceLookupInterval = time.Duration(deviceLookupIntervalMS) * time.Millisecond
	profile.DeviceRecordRepublishPeriod = time.Duration(deviceRecordRepublishMS) * time.Millisecond
	profile.DisableDeviceRecordPublish = disableDeviceRecordPublish
	profile.KeepaliveInterval = time.Duration(controlKeepaliveIntervalMS) * time.Millisecond
	profile.KeepaliveTimeout = time.Duration(controlKeepaliveTimeoutMS) * time.Millisecond
	profile.KeepaliveMaxConsecutiveMiss = uint32(controlKeepaliveMaxMisses)

	cfg := daemon.Config{
		IdentityFile:           identityFile,
		TrustStoreFile:         trustStoreFile,
		SocketPath:             socketPath,
		TrustOnFirstUse:        trustOnFirstUse,
		ListenAddr:             listenAddr,
		ICEListenPort:          iceListenPort,
		STUNServers:            stunServers,
		TURNServers:            turnServers,
		TURNUsername:           turnUsername,
		TURNPassword:           turnPassword,
		BootstrapPeers:         bootstrapPeers,
		DHTClientOnly:          dhtClientOnly,
		EnableMulticast:        enableMulticast,
		MulticastPort:          multicastPort,
		AutoRequestDeviceCodes: append(append([]string{}, autoRequest...), connectCodes...),
		Timing:                 timing,
		Profile:                profile,
		Auth:                   auth,
		SupportedCodecs:        []wire.VideoCodec{wire.VideoCodecH264},
	}

	d, err := daemon.New(cfg)
	if err != nil {
		log.Fatalf("aetherlink-node: %v", err)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		log.Printf("aetherlink-node: %v", err)
		os.Exit(1)
	}
}
