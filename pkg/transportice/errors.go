package transportice

import "errors"

// Errors returned by Manager: small sentinel values, wrapped with
// fmt.Errorf at the call site rather than carrying their own context.
var (
	ErrClosed        = errors.New("transportice: manager closed")
	ErrNoPeerAddress = errors.New("transportice: no address known for peer")
	ErrNotConnected  = errors.New("transportice: peer not connected")
)
