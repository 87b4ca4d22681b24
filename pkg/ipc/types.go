// Package ipc defines the envelope and message types the daemon's IPC
// surface exchanges with a UI or control tool (spec §6 "IPC surface ...
// abstract contract"). The core only observes decoded commands and emits
// decoded events; this package owns the wire contract around that
// boundary, not the Unix-socket plumbing itself.
package ipc

// Envelope is the outermost frame carried over the IPC socket: exactly one
// of Request, Response, or Event is set (spec §6 "schema-encoded envelope
// {seq, request_id, payload}").
type Envelope struct {
	Seq       uint64    `json:"seq"`
	RequestID string    `json:"request_id,omitempty"`
	Request   *Request  `json:"request,omitempty"`
	Response  *Response `json:"response,omitempty"`
	Event     *Event    `json:"event,omitempty"`
}

// Kind returns a short tag for logging/dispatch.
func (e Envelope) Kind() string {
	switch {
	case e.Request != nil:
		return "Request/" + e.Request.Kind()
	case e.Response != nil:
		return "Response/" + e.Response.Kind()
	case e.Event != nil:
		return "Event/" + e.Event.Kind()
	default:
		return "Empty"
	}
}

// Request is the discriminated union of commands a control tool can send
// (spec §6 IPC surface).
type Request struct {
	StartDaemon     *StartDaemonRequest     `json:"start_daemon,omitempty"`
	StopDaemon      *StopDaemonRequest      `json:"stop_daemon,omitempty"`
	DiscoverDevices *DiscoverDevicesRequest `json:"discover_devices,omitempty"`
	PairDevice      *PairDeviceRequest      `json:"pair_device,omitempty"`
	ConnectSession  *ConnectSessionRequest  `json:"connect_session,omitempty"`
	GetSessionStats *GetSessionStatsRequest `json:"get_session_stats,omitempty"`
}

func (r Request) Kind() string {
	switch {
	case r.StartDaemon != nil:
		return "StartDaemon"
	case r.StopDaemon != nil:
		return "StopDaemon"
	case r.DiscoverDevices != nil:
		return "DiscoverDevices"
	case r.PairDevice != nil:
		return "PairDevice"
	case r.ConnectSession != nil:
		return "ConnectSession"
	case r.GetSessionStats != nil:
		return "GetSessionStats"
	default:
		return "Empty"
	}
}

// StartDaemonRequest asks the daemon to bring up the node (spec §6).
type StartDaemonRequest struct {
	Listen          string   `json:"listen"`
	Bootstrap       []string `json:"bootstrap"`
	TrustOnFirstUse bool     `json:"trust_on_first_use"`
}

// StopDaemonRequest asks the daemon to shut down cleanly.
type StopDaemonRequest struct{}

// DiscoverDevicesRequest asks for the known-device set.
type DiscoverDevicesRequest struct{}

// PairDeviceRequest sets or clears a paired marker for device_code.
type PairDeviceRequest struct {
	DeviceCode string `json:"device_code"`
	Approved   bool   `json:"approved"`
}

// ConnectSessionRequest asks the daemon to establish (or reuse) a control
// session with device_code.
type ConnectSessionRequest struct {
	DeviceCode string `json:"device_code"`
}

// GetSessionStatsRequest asks for telemetry on an active session.
type GetSessionStatsRequest struct {
	SessionID string `json:"session_id"`
}

// Response is the discriminated union of replies to a Request.
type Response struct {
	Ack            *Ack                   `json:"ack,omitempty"`
	DeviceList     *DeviceListResponse    `json:"device_list,omitempty"`
	SessionConnect *SessionConnectResponse `json:"session_connect,omitempty"`
	SessionStats   *SessionStatsResponse  `json:"session_stats,omitempty"`
}

func (r Response) Kind() string {
	switch {
	case r.Ack != nil:
		return "Ack"
	case r.DeviceList != nil:
		return "DeviceList"
	case r.SessionConnect != nil:
		return "SessionConnect"
	case r.SessionStats != nil:
		return "SessionStats"
	default:
		return "Empty"
	}
}

// Ack answers StartDaemon/StopDaemon/PairDevice.
type Ack struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// DeviceInfo is one entry of a DiscoverDevices reply, derived from the
// trust store joined with the paired-device set (spec §6).
type DeviceInfo struct {
	DeviceCode     string `json:"device_code"`
	PeerID         string `json:"peer_id"`
	LastSeenUnixMS int64  `json:"last_seen_unix_ms"`
	Trusted        bool   `json:"trusted"`
	Paired         bool   `json:"paired"`
}

// DeviceListResponse answers DiscoverDevices.
type DeviceListResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// SessionConnectResponse answers ConnectSession.
type SessionConnectResponse struct {
	SessionID string `json:"session_id"`
	Accepted  bool   `json:"accepted"`
}

// SessionStatsResponse answers GetSessionStats. rtt_ms and using_relay come
// from pkg/control's keepalive bookkeeping; the data-plane fields this
// core does not own are left at their zero value (spec §9 supplemented
// features: "populated partially from the node").
type SessionStatsResponse struct {
	RTTMS            int64   `json:"rtt_ms"`
	TXKbps           float64 `json:"tx_kbps"`
	RXKbps           float64 `json:"rx_kbps"`
	PacketLossX10000 int32   `json:"packet_loss_x10000"`
	EncodeLatencyMS  int64   `json:"encode_latency_ms"`
	DecodeLatencyMS  int64   `json:"decode_latency_ms"`
	UsingRelay       bool    `json:"using_relay"`
}

// Event is the discriminated union of unsolicited notifications the
// daemon pushes to connected control tools (spec §6 "Events").
type Event struct {
	SessionState    *SessionStateEvent    `json:"session_state,omitempty"`
	DiscoveryUpdate *DiscoveryUpdateEvent `json:"discovery_update,omitempty"`
	Error           *ErrorEvent           `json:"error,omitempty"`
}

func (e Event) Kind() string {
	switch {
	case e.SessionState != nil:
		return "SessionState"
	case e.DiscoveryUpdate != nil:
		return "DiscoveryUpdate"
	case e.Error != nil:
		return "Error"
	default:
		return "Empty"
	}
}

// SessionStateEvent mirrors control.EventSink.SessionState (spec §6, §7
// "User-visible behavior").
type SessionStateEvent struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Detail    string `json:"detail,omitempty"`
}

// DiscoveryUpdateEvent reports a change to the known-device set.
type DiscoveryUpdateEvent struct {
	Devices []DeviceInfo `json:"devices"`
}

// ErrorEvent mirrors control.EventSink.Error.
type ErrorEvent struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}
