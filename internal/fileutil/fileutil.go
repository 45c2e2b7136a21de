// Package fileutil holds the small set of file-writing primitives shared by the
// provisioning commands.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// DirPerm is used for every directory the provisioner creates.
const DirPerm = 0o700

// EnsureParent creates the parent directories of path.
func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// maxLinkHops bounds symlink resolution, matching the usual kernel limit.
const maxLinkHops = 40

// WriteAtomic replaces path with data through a temp file in the same directory.
// A symlink at path is followed and its target replaced, so the link survives.
// It never creates parent directories: a missing directory is returned as an error.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	target, err := ResolveLink(path)
	if err != nil {
		return err
	}
	err = renameio.WriteFile(target, data, perm,
		renameio.WithTempDir(filepath.Dir(target)),
		renameio.WithStaticPermissions(perm),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ResolveLink follows symlinks at path until it reaches a regular file or a
// name that does not exist yet. Dangling links resolve to their target.
func ResolveLink(path string) (string, error) {
	current := path
	for range maxLinkHops {
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return current, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		dest, err := os.Readlink(current)
		if err != nil {
			return "", fmt.Errorf("read link %s: %w", current, err)
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(current), dest)
		}
		current = dest
	}
	return "", fmt.Errorf("resolve %s: too many levels of symbolic links", path)
}

// CreateExclusive writes data to path only if path does not exist yet.
// An existing file is reported as an error matching os.ErrExist.
func CreateExclusive(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return f.Close()
}
