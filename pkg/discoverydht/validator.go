// Package discoverydht implements the DHT capability (pkg/discovery.DHT)
// on top of github.com/libp2p/go-libp2p-kad-dht, the Kademlia routing
// table used to publish and look up device records (spec §4.6, §6 "DHT
// substrate").
package discoverydht

import (
	"encoding/json"
	"fmt"

	"github.com/aetherlink/aetherlink/pkg/discovery"
	"github.com/aetherlink/aetherlink/pkg/wire"
)

// Namespace is the record namespace registered with the DHT's validator
// (spec keys are "/aetherlink/device/v1/<code>"; go-libp2p-kad-dht
// dispatches PutValue/GetValue by the first path segment after the
// leading slash).
const Namespace = "aetherlink"

// deviceRecordValidator accepts any record under discovery.KeyPrefix and,
// among competing values for the same key, prefers whichever decodes with
// the newest UnixMS (spec §4.6 freshness window; ties are broken by raw
// byte length for a deterministic, dependency-free tie-break).
type deviceRecordValidator struct{}

// Validate rejects keys outside the device-record namespace. It does not
// second-guess content: pkg/discovery itself re-validates version, device
// code, and freshness on every read (acceptAnnouncement), since those
// checks need context the validator does not have (the looked-up device
// code, the local peer id).
func (deviceRecordValidator) Validate(key string, value []byte) error {
	if len(value) == 0 {
		return fmt.Errorf("discoverydht: empty record value for key %q", key)
	}
	if len(key) < len(discovery.KeyPrefix) || key[:len(discovery.KeyPrefix)] != discovery.KeyPrefix {
		return fmt.Errorf("discoverydht: key %q outside namespace %q", key, discovery.KeyPrefix)
	}
	return nil
}

// Select picks the best of several records the DHT holds for one key,
// preferring whichever decodes with the newest UnixMS (spec §4.6
// freshness intent). A record that fails to decode loses to any record
// that does; among records that all fail to decode, or tie on UnixMS,
// ties break on raw byte length for a deterministic, dependency-free
// result.
func (deviceRecordValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("discoverydht: Select called with no candidates for key %q", key)
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if recordBeats(values[i], values[best]) {
			best = i
		}
	}
	return best, nil
}

// recordBeats reports whether candidate should replace current as the
// selected record: a decodable UnixMS wins over one that doesn't decode,
// a newer UnixMS wins over an older one, and a longer payload breaks any
// remaining tie.
func recordBeats(candidate, current []byte) bool {
	candidateMS, candidateOK := decodeUnixMS(candidate)
	currentMS, currentOK := decodeUnixMS(current)

	switch {
	case candidateOK != currentOK:
		return candidateOK
	case candidateOK && currentOK && candidateMS != currentMS:
		return candidateMS > currentMS
	default:
		return len(candidate) > len(current)
	}
}

func decodeUnixMS(value []byte) (int64, bool) {
	var ann wire.DeviceAnnouncement
	if err := json.Unmarshal(value, &ann); err != nil {
		return 0, false
	}
	return ann.UnixMS, true
}
