package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxEnvelopeBytes bounds one IPC frame. Every payload in this contract is
// a handful of scalar fields plus, at most, the known-device list, so
// anything past a megabyte means a confused or hostile client.
const maxEnvelopeBytes = 1 << 20

// WriteEnvelope writes env to w framed with a 4-byte big-endian length
// prefix (spec §6 "length-prefixed, big-endian 32-bit length").
func WriteEnvelope(w io.Writer, env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ipc: encoding envelope: %w", err)
	}
	if len(payload) > maxEnvelopeBytes {
		return fmt.Errorf("ipc: envelope of %d bytes exceeds limit", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadEnvelope reads one length-prefixed envelope from r.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxEnvelopeBytes {
		return nil, fmt.Errorf("ipc: peer announced envelope of %d bytes, exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return nil, fmt.Errorf("ipc: decoding envelope: %w", err)
	}
	return &env, nil
}
