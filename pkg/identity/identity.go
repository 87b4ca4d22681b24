// Package identity loads, creates, and persists the local node's long-lived
// signing key, and derives its peer id.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Identity errors (spec §4.1, §7 "IO/persistence").
var (
	ErrIdentityIO     = errors.New("identity: io error")
	ErrIdentityDecode = errors.New("identity: decode error")
)

// filePerm is the owner-only permission mode persisted files are written
// with (spec §6 "Persisted files").
const filePerm = 0o600

// Key is the local node's long-lived Ed25519 keypair plus its derived
// peer id. Equality of peer id is equivalent to equality of public key
// (spec §3 PeerId).
type Key struct {
	Priv   ed25519.PrivateKey
	Pub    ed25519.PublicKey
	PeerID peer.ID
}

// LoadOrCreate decodes the key stored at path, or generates and persists a
// fresh one if the file does not exist (spec §4.1).
func LoadOrCreate(path string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return create(path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIdentityIO, path, err)
	}
	return decode(raw)
}

func create(path string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generating key: %v", ErrIdentityIO, err)
	}
	if err := persist(path, priv); err != nil {
		return nil, err
	}
	return keyFromMaterial(priv, pub)
}

// persist writes priv to path atomically: write-temp then rename, with
// owner-only permissions re-applied after rename (spec §4.1).
func persist(path string, priv ed25519.PrivateKey) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, priv, filePerm); err != nil {
		return fmt.Errorf("%w: writing temp file: %v", ErrIdentityIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: renaming into place: %v", ErrIdentityIO, err)
	}
	if err := os.Chmod(path, filePerm); err != nil {
		return fmt.Errorf("%w: re-applying permissions: %v", ErrIdentityIO, err)
	}
	return nil
}

func decode(raw []byte) (*Key, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrIdentityDecode, ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return keyFromMaterial(priv, pub)
}

func keyFromMaterial(priv ed25519.PrivateKey, pub ed25519.PublicKey) (*Key, error) {
	pid, err := PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving peer id: %v", ErrIdentityDecode, err)
	}
	return &Key{Priv: priv, Pub: pub, PeerID: pid}, nil
}

// PeerIDFromPublicKey derives a content-addressed peer id from a raw
// Ed25519 public key, using the transport's native peer-identifier scheme
// (spec §3 PeerId).
func PeerIDFromPublicKey(pub ed25519.PublicKey) (peer.ID, error) {
	pk, err := libp2pcrypto.UnmarshalEd25519PublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("unmarshaling public key: %w", err)
	}
	return peer.IDFromPublicKey(pk)
}

// Sign signs msg with the local identity key.
func (k *Key) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Priv, msg)
}

// VerifySignature verifies sig over msg against a raw Ed25519 public key.
func VerifySignature(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
