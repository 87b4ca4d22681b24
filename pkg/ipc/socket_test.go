package ipc

import (
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestServerClient_StartDaemonRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "aetherlink.sock")

	srv, err := NewServer(ServerConfig{
		SocketPath: sockPath,
		Handler: func(req *Request) *Response {
			if req.StartDaemon == nil {
				t.Errorf("unexpected request kind %s", req.Kind())
				return &Response{Ack: &Ack{OK: false, Detail: "unexpected request"}}
			}
			return &Response{Ack: &Ack{OK: true}}
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Call(&Request{StartDaemon: &StartDaemonRequest{Listen: ":0", TrustOnFirstUse: true}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Ack == nil || !resp.Ack.OK {
		t.Fatalf("got %+v, want ok ack", resp)
	}
}

func TestServerClient_MultipleCallsSameConnection(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "aetherlink.sock")

	calls := 0
	srv, err := NewServer(ServerConfig{
		SocketPath: sockPath,
		Handler: func(req *Request) *Response {
			calls++
			return &Response{Ack: &Ack{OK: true, Detail: req.Kind()}}
		},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Call(&Request{StopDaemon: &StopDaemonRequest{}}); err != nil {
		t.Fatalf("Call 1: %v", err)
	}
	if _, err := client.Call(&Request{DiscoverDevices: &DiscoverDevicesRequest{}}); err != nil {
		t.Fatalf("Call 2: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler invoked %d times, want 2", calls)
	}
}

func TestServer_Broadcast(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "aetherlink.sock")

	srv, err := NewServer(ServerConfig{
		SocketPath: sockPath,
		Handler:    func(req *Request) *Response { return &Response{Ack: &Ack{OK: true}} },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client, err := Dial(sockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Give the accept loop a moment to register the connection before
	// broadcasting, since Dial returning does not imply the server side
	// has finished registering it in conns.
	time.Sleep(20 * time.Millisecond)

	srv.Broadcast(&Event{SessionState: &SessionStateEvent{SessionID: "s1", State: "active"}})

	env, err := ReadEnvelope(client.conn)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if env.Event == nil || env.Event.SessionState == nil || env.Event.SessionState.SessionID != "s1" {
		t.Fatalf("got %+v", env)
	}
}

func TestWriteReadEnvelope_RoundTrip(t *testing.T) {
	r, w := net.Pipe()
	defer r.Close()
	defer w.Close()

	env := &Envelope{Seq: 7, Event: &Event{Error: &ErrorEvent{Code: "auth_failed", Detail: "bad signature"}}}

	go func() {
		if err := WriteEnvelope(w, env); err != nil {
			t.Errorf("WriteEnvelope: %v", err)
		}
	}()

	got, err := ReadEnvelope(r)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if got.Event == nil || got.Event.Error == nil || got.Event.Error.Code != "auth_failed" {
		t.Fatalf("got %+v", got)
	}
}
