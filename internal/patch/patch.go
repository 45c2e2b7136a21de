package patch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"swarm-provisioner/internal/fileutil"
)

// DefaultPlaceholder is the token deployment templates carry for the bootstrap peer ID.
const DefaultPlaceholder = "REPLACE_ME"

var ErrEmptyPlaceholder = errors.New("placeholder token must not be empty")

// Patch replaces every literal occurrence of token in the file at path with
// the trimmed replacement and writes the result back in place. A symlinked
// path is patched through the link. It returns the number of occurrences
// replaced; zero is not an error.
func Patch(path, replacement, token string) (int, error) {
	if token == "" {
		return 0, ErrEmptyPlaceholder
	}
	replacement = strings.TrimSpace(replacement)

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	count := strings.Count(text, token)
	patched := strings.ReplaceAll(text, token, replacement)

	if err := fileutil.WriteAtomic(path, []byte(patched), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return count, nil
}
