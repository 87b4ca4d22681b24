package transportice

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single control frame. Control messages are small
// fixed-field records (spec §4.2-§4.4, none of them carry bulk payloads),
// so anything past a few KiB is a malformed or hostile peer.
const maxFrameBytes = 64 * 1024

// writeFrame writes payload prefixed with its 4-byte big-endian length.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("transportice: frame of %d bytes exceeds limit", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("transportice: peer announced frame of %d bytes, exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
