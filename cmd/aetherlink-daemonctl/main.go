// Command aetherlink-daemonctl is a thin IPC client for a running
// aetherlink-node: it frames one ipc.Request, waits for the matching
// ipc.Response, and prints it (spec §9 supplemented "a minimal framer
// that encodes ipc.Envelope requests and decodes responses over a Unix
// socket"; process supervision itself is out of this core's scope).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aetherlink/aetherlink/pkg/ipc"
)

func main() {
	socketPath := flag.String("socket", "/tmp/aetherlink.sock", "path to the daemon's IPC Unix socket")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	req, err := buildRequest(args[0], args[1:])
	if err != nil {
		log.Fatalf("aetherlink-daemonctl: %v", err)
	}

	client, err := ipc.Dial(*socketPath)
	if err != nil {
		log.Fatalf("aetherlink-daemonctl: connecting to %s: %v", *socketPath, err)
	}
	defer client.Close()

	resp, err := client.Call(req)
	if err != nil {
		log.Fatalf("aetherlink-daemonctl: %v", err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("aetherlink-daemonctl: encoding response: %v", err)
	}
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: aetherlink-daemonctl [-socket path] <command> [args...]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  discover-devices")
	fmt.Fprintln(os.Stderr, "  pair-device <device_code> <true|false>")
	fmt.Fprintln(os.Stderr, "  connect-session <device_code>")
	fmt.Fprintln(os.Stderr, "  session-stats <session_id>")
	fmt.Fprintln(os.Stderr, "  stop-daemon")
}

func buildRequest(cmd string, args []string) (*ipc.Request, error) {
	switch cmd {
	case "discover-devices":
		return &ipc.Request{DiscoverDevices: &ipc.DiscoverDevicesRequest{}}, nil

	case "pair-device":
		if len(args) != 2 {
			return nil, fmt.Errorf("pair-device requires <device_code> <true|false>")
		}
		return &ipc.Request{PairDevice: &ipc.PairDeviceRequest{
			DeviceCode: args[0],
			Approved:   args[1] == "true",
		}}, nil

	case "connect-session":
		if len(args) != 1 {
			return nil, fmt.Errorf("connect-session requires <device_code>")
		}
		return &ipc.Request{ConnectSession: &ipc.ConnectSessionRequest{DeviceCode: args[0]}}, nil

	case "session-stats":
		if len(args) != 1 {
			return nil, fmt.Errorf("session-stats requires <session_id>")
		}
		return &ipc.Request{GetSessionStats: &ipc.GetSessionStatsRequest{SessionID: args[0]}}, nil

	case "stop-daemon":
		return &ipc.Request{StopDaemon: &ipc.StopDaemonRequest{}}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}
