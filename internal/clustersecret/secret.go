// Package clustersecret keeps the 256-bit cluster secret on disk and mirrors it
// into a KEY=VALUE env file for the cluster containers.
//
// The secret is generated once. Later runs reuse any valid secret they find, so
// Provision is idempotent once a secret exists.
package clustersecret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/blake2b"

	"swarm-provisioner/internal/fileutil"
)

// SecretSize is the number of random bytes behind a cluster secret.
const SecretSize = 32

var (
	ErrInvalidSecret = errors.New("invalid cluster secret")
	ErrInvalidEnvVar = errors.New("invalid env var name")
	ErrEnvMismatch   = errors.New("env file does not match cluster secret")
)

var (
	secretPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	envVarPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Options names the files Provision reads and writes.
type Options struct {
	SecretPath string
	EnvPath    string
	EnvVar     string
}

// Result is the outcome of a Provision call.
type Result struct {
	// Secret is the secret now stored at SecretPath.
	Secret string
	// Generated is true when a new secret replaced an absent or invalid one.
	Generated bool
}

// Valid reports whether s is exactly 64 hex digits.
func Valid(s string) bool {
	return secretPattern.MatchString(s)
}

// Generate returns a new lowercase hex secret from crypto/rand.
func Generate() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Fingerprint is a short, non-reversible identifier for a secret, safe to log.
func Fingerprint(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

// Load reads the trimmed secret file. A missing file returns ok=false and no
// error; any other failure to read is returned.
func Load(path string) (secret string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cluster secret: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Provision ensures a valid secret exists at opts.SecretPath and rewrites
// opts.EnvPath to bind opts.EnvVar to it.
func Provision(opts Options) (*Result, error) {
	if !envVarPattern.MatchString(opts.EnvVar) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnvVar, opts.EnvVar)
	}

	res, err := ensureSecret(opts.SecretPath)
	if err != nil {
		return nil, err
	}

	if err := WriteEnvFile(opts.EnvPath, opts.EnvVar, res.Secret); err != nil {
		return nil, err
	}
	return res, nil
}

func ensureSecret(path string) (*Result, error) {
	existing, found, err := Load(path)
	if err != nil {
		return nil, err
	}
	if found && Valid(existing) {
		return &Result{Secret: existing}, nil
	}

	secret, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := fileutil.EnsureParent(path); err != nil {
		return nil, err
	}
	if found {
		// Invalid content is replaced wholesale.
		if err := fileutil.WriteAtomic(path, []byte(secret+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("write cluster secret: %w", err)
		}
		return &Result{Secret: secret, Generated: true}, nil
	}

	return createSecret(path, secret)
}

// createSecret stores secret at path only if no file exists there. When
// another run created the file first, its secret is reused instead.
func createSecret(path, secret string) (*Result, error) {
	err := fileutil.CreateExclusive(path, []byte(secret+"\n"), 0o600)
	if errors.Is(err, fs.ErrExist) {
		winner, _, loadErr := Load(path)
		if loadErr != nil {
			return nil, loadErr
		}
		if !Valid(winner) {
			return nil, fmt.Errorf("%w: concurrently written %s", ErrInvalidSecret, path)
		}
		return &Result{Secret: winner}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("write cluster secret: %w", err)
	}
	return &Result{Secret: secret, Generated: true}, nil
}

// WriteEnvFile writes a single name=secret line to path, creating parent
// directories and replacing any existing content.
func WriteEnvFile(path, name, secret string) error {
	if err := fileutil.EnsureParent(path); err != nil {
		return err
	}
	line := fmt.Sprintf("%s=%s\n", name, secret)
	if err := fileutil.WriteAtomic(path, []byte(line), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

// Check verifies that the secret file holds a valid secret and that the env
// file binds opts.EnvVar to exactly that value. It writes nothing.
func Check(opts Options) (string, error) {
	secret, found, err := Load(opts.SecretPath)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s does not exist", ErrInvalidSecret, opts.SecretPath)
	}
	if !Valid(secret) {
		return "", fmt.Errorf("%w: %s", ErrInvalidSecret, opts.SecretPath)
	}

	vars, err := godotenv.Read(opts.EnvPath)
	if err != nil {
		return "", fmt.Errorf("read env file: %w", err)
	}
	bound, ok := vars[opts.EnvVar]
	if !ok {
		return "", fmt.Errorf("%w: %s not set in %s", ErrEnvMismatch, opts.EnvVar, opts.EnvPath)
	}
	if bound != secret {
		return "", fmt.Errorf("%w: %s in %s", ErrEnvMismatch, opts.EnvVar, opts.EnvPath)
	}
	return secret, nil
}
