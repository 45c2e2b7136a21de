// Package identity manages the private key of the swarm bootstrap node. Its
// peer ID is the value patch-bootstrap writes into deployment descriptors.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"swarm-provisioner/internal/fileutil"
)

// LoadOrGenerate returns the peer ID of the key stored at path, generating and
// persisting a new Ed25519 key when none exists. generated reports which case ran.
func LoadOrGenerate(path string) (id peer.ID, generated bool, err error) {
	id, err = PeerIDFromFile(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return "", false, fmt.Errorf("generate ed25519 key: %w", err)
	}
	if err := fileutil.EnsureParent(path); err != nil {
		return "", false, err
	}
	return storeKey(path, priv)
}

// storeKey persists priv at path unless a key already exists there, in which
// case the existing key wins and its peer ID is returned.
func storeKey(path string, priv crypto.PrivKey) (peer.ID, bool, error) {
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return "", false, fmt.Errorf("marshal private key: %w", err)
	}
	if err := fileutil.CreateExclusive(path, data, 0o600); err != nil {
		if errors.Is(err, fs.ErrExist) {
			id, err := PeerIDFromFile(path)
			return id, false, err
		}
		return "", false, fmt.Errorf("write identity: %w", err)
	}

	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", false, fmt.Errorf("derive peer id: %w", err)
	}
	return id, true, nil
}

// PeerIDFromFile derives the peer ID of a marshalled libp2p private key.
func PeerIDFromFile(path string) (peer.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return "", fmt.Errorf("unmarshal identity %s: %w", path, err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("derive peer id: %w", err)
	}
	return id, nil
}
