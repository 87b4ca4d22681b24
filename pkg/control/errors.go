package control

import "errors"

// ErrUnexpectedMessageKind is returned when a ControlMessage envelope
// carries a variant that is not valid for the call it arrived on (spec
// §4.7: only SessionRequest/Ping are valid as ControlRequest, only
// SessionAccept/SessionReject/Pong as ControlResponse).
var ErrUnexpectedMessageKind = errors.New("control: unexpected message kind")
