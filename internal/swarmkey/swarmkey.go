// Package swarmkey generates the pre-shared key that closes a private storage
// swarm to peers that do not hold it.
package swarmkey

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"swarm-provisioner/internal/fileutil"
)

const (
	// Header is the protocol line of a swarm key file.
	Header = "/key/swarm/psk/1.0.0/"
	// Encoding is the encoding tag line; the key itself is base16.
	Encoding = "/base16/"
	// Size is the number of random bytes in a key.
	Size = 32
	// DefaultPerm keeps the key readable by its owner only.
	DefaultPerm os.FileMode = 0o600
)

var ErrInvalidSwarmKey = errors.New("invalid swarm key")

// Key is a 32-byte pre-shared swarm key.
type Key [Size]byte

// New returns a key filled from crypto/rand.
func New() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("read random bytes: %w", err)
	}
	return k, nil
}

// Hex returns the lowercase hex form of the key.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// Encode renders the three-line swarm key file.
func (k Key) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(Header + "\n")
	buf.WriteString(Encoding + "\n")
	buf.WriteString(k.Hex() + "\n")
	return buf.Bytes()
}

// Parse validates the contents of a swarm key file.
func Parse(data []byte) (Key, error) {
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) != 3 {
		return Key{}, fmt.Errorf("%w: expected 3 lines, got %d", ErrInvalidSwarmKey, len(lines))
	}
	if string(lines[0]) != Header {
		return Key{}, fmt.Errorf("%w: header %q", ErrInvalidSwarmKey, lines[0])
	}
	if string(lines[1]) != Encoding {
		return Key{}, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidSwarmKey, lines[1])
	}
	raw, err := hex.DecodeString(string(lines[2]))
	if err != nil || len(raw) != Size {
		return Key{}, fmt.Errorf("%w: key must be %d hex digits", ErrInvalidSwarmKey, Size*2)
	}
	var k Key
	copy(k[:], raw)
	return k, nil
}

// Generate writes a freshly generated key to path with mode perm, replacing
// any existing file. The parent directory must already exist.
func Generate(path string, perm os.FileMode) (Key, error) {
	k, err := New()
	if err != nil {
		return Key{}, err
	}
	if err := fileutil.WriteAtomic(path, k.Encode(), perm); err != nil {
		return Key{}, fmt.Errorf("write swarm key: %w", err)
	}
	return k, nil
}

// Load reads and validates the swarm key at path.
func Load(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("read swarm key: %w", err)
	}
	return Parse(data)
}
