package transportice

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
)

// deriveICECredentials computes a local/remote ICE ufrag+pwd pair that both
// ends of a link compute independently from the two peer ids alone, with no
// separate signaling exchange.
//
// Real ICE (RFC 8445) signals ufrag/pwd out of band (SDP offer/answer) before
// either side gathers candidates. AetherLink has no such channel: the only
// thing both peers already agree on before dialing is each other's peer id
// (learned from the DHT device record, spec §4.6). Deriving the credentials
// from the sorted pair of peer ids gives both sides the same ICE session
// secret without inventing a signaling round trip, at the cost of not being
// usable against a non-AetherLink ICE peer. This is a deliberate adaptation,
// not part of the RFC.
func deriveICECredentials(a, b peer.ID) (ufrag, pwd string) {
	lo, hi := string(a), string(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	mac := hmac.New(sha256.New, []byte("aetherlink-ice-credentials-v1"))
	mac.Write([]byte(lo))
	mac.Write([]byte{0})
	mac.Write([]byte(hi))
	sum := mac.Sum(nil)

	ufrag = hex.EncodeToString(sum[:8])
	pwd = hex.EncodeToString(sum[8:24])
	return ufrag, pwd
}

// sortPeers returns a, b in a stable order so callers that need a canonical
// "who goes first" tie-break (deciding the controlling ICE agent) get the
// same answer on both ends of a link.
func sortPeers(a, b peer.ID) (first, second peer.ID) {
	if strings.Compare(string(a), string(b)) <= 0 {
		return a, b
	}
	return b, a
}
