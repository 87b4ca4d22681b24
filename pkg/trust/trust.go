// Package trust implements the persistent device_code -> peer identity
// mapping with trust-on-first-use (TOFU) and pinning (spec §4.2).
package trust

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Trust errors (spec §7 "Policy failures", "IO/persistence").
var (
	ErrUntrustedPeer        = errors.New("trust: peer not trusted and TOFU disabled")
	ErrTrustedPeerMismatch  = errors.New("trust: device code bound to a different peer id or public key")
	ErrInvalidDeviceCode    = errors.New("trust: device code is empty")
	ErrInvalidPeerID        = errors.New("trust: peer id does not parse")
	ErrInvalidPubkeyHex     = errors.New("trust: public key is not valid hex")
	ErrTrustStoreCorrupt    = errors.New("trust: store file is corrupt")
	ErrTrustStoreIO         = errors.New("trust: io error")
)

// lastSeenMinInterval is the minimum gap between last_seen_unix_ms advances
// for an existing record (spec §4.2, §8 invariant 4).
const lastSeenMinInterval = 60_000

const filePerm = 0o600

// Record is the persisted, JSON-serialized form of a trusted peer (spec §3
// TrustedPeerRecord).
type Record struct {
	DeviceCode      string `json:"device_code"`
	PeerID          string `json:"peer_id"`
	IdentityPubkey  string `json:"identity_pubkey"`
	FirstSeenUnixMS int64  `json:"first_seen_unix_ms"`
	LastSeenUnixMS  int64  `json:"last_seen_unix_ms"`
}

type document struct {
	Version int      `json:"version"`
	Peers   []Record `json:"peers"`
}

const documentVersion = 1

// entry is the validated, in-memory form of a Record.
type entry struct {
	peerID peer.ID
	pubkey []byte
	first  int64
	last   int64
}

// Store is the in-memory trust store, keyed by device code. It is owned
// exclusively by the control engine (spec §5 "Resource ownership").
type Store struct {
	mu   sync.Mutex
	byCode map[string]*entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byCode: make(map[string]*entry)}
}

// FromRecords validates and loads a batch of records. Records failing
// validation are rejected with an error naming the offending device code;
// duplicates on device code are not deduplicated here — the caller must
// avoid supplying them (spec §4.2).
func FromRecords(records []Record) (*Store, error) {
	s := NewStore()
	for _, r := range records {
		e, err := validateRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.DeviceCode, err)
		}
		s.byCode[r.DeviceCode] = e
	}
	return s, nil
}

func validateRecord(r Record) (*entry, error) {
	if strings.TrimSpace(r.DeviceCode) == "" {
		return nil, ErrInvalidDeviceCode
	}
	pid, err := peer.Decode(r.PeerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerID, err)
	}
	pub, err := hex.DecodeString(r.IdentityPubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubkeyHex, err)
	}
	return &entry{peerID: pid, pubkey: pub, first: r.FirstSeenUnixMS, last: r.LastSeenUnixMS}, nil
}

// EnsureTrustedResult reports whether EnsureTrusted mutated the store.
type EnsureTrustedResult struct {
	Changed bool
}

// EnsureTrusted implements the TOFU/pinning policy (spec §4.2):
//   - known device code: requires exact peer id and pubkey match, else
//     ErrTrustedPeerMismatch; advances last_seen at most once per 60s.
//   - unknown device code: inserts under TOFU, else ErrUntrustedPeer.
func (s *Store) EnsureTrusted(deviceCode string, pid peer.ID, pubkey []byte, nowUnixMS int64, tofu bool) (EnsureTrustedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byCode[deviceCode]; ok {
		if e.peerID != pid || !bytesEqual(e.pubkey, pubkey) {
			return EnsureTrustedResult{}, ErrTrustedPeerMismatch
		}
		if nowUnixMS-e.last >= lastSeenMinInterval {
			e.last = nowUnixMS
			return EnsureTrustedResult{Changed: true}, nil
		}
		return EnsureTrustedResult{}, nil
	}

	if !tofu {
		return EnsureTrustedResult{}, ErrUntrustedPeer
	}

	s.byCode[deviceCode] = &entry{
		peerID: pid,
		pubkey: append([]byte(nil), pubkey...),
		first:  nowUnixMS,
		last:   nowUnixMS,
	}
	return EnsureTrustedResult{Changed: true}, nil
}

// Lookup returns the trusted record for a device code, if any.
func (s *Store) Lookup(deviceCode string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byCode[deviceCode]
	if !ok {
		return Record{}, false
	}
	return recordFromEntry(deviceCode, e), true
}

func recordFromEntry(code string, e *entry) Record {
	return Record{
		DeviceCode:      code,
		PeerID:          e.peerID.String(),
		IdentityPubkey:  hex.EncodeToString(e.pubkey),
		FirstSeenUnixMS: e.first,
		LastSeenUnixMS:  e.last,
	}
}

// Records returns all records sorted by device code, matching the
// persisted ordering (spec §4.2).
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.byCode))
	for code, e := range s.byCode {
		out = append(out, recordFromEntry(code, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceCode < out[j].DeviceCode })
	return out
}

// Load reads and validates a trust store file. A missing file is not an
// error: it yields an empty store.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(), nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTrustStoreIO, path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrustStoreCorrupt, err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrTrustStoreCorrupt, doc.Version)
	}
	return FromRecords(doc.Peers)
}

// Persist writes the store atomically (write-temp + rename), sorted by
// device code, with owner-only permissions (spec §4.2, §4.1 pattern).
func (s *Store) Persist(path string) error {
	doc := document{Version: documentVersion, Peers: s.Records()}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling: %v", ErrTrustStoreIO, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, filePerm); err != nil {
		return fmt.Errorf("%w: writing temp file: %v", ErrTrustStoreIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: renaming into place: %v", ErrTrustStoreIO, err)
	}
	if err := os.Chmod(path, filePerm); err != nil {
		return fmt.Errorf("%w: re-applying permissions: %v", ErrTrustStoreIO, err)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
