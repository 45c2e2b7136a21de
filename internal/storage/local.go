package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider mirrors artifacts into a backup directory on the same host.
type LocalProvider struct {
	basePath string
}

func NewLocalProvider(basePath string) (*LocalProvider, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", basePath, err)
	}
	return &LocalProvider{
		basePath: basePath,
	}, nil
}

func (p *LocalProvider) resolve(key string) (string, error) {
	fullPath := filepath.Join(p.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(p.basePath, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes backup directory", key)
	}
	return fullPath, nil
}

func (p *LocalProvider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	errChan := make(chan error, 1)

	fullPath, err := p.resolve(key)
	if err != nil {
		errChan <- err
		close(errChan)
		return nil, errChan
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		errChan <- fmt.Errorf("failed to create directory %s: %w", dir, err)
		close(errChan)
		return nil, errChan
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		errChan <- fmt.Errorf("failed to create file %s: %w", fullPath, err)
		close(errChan)
		return nil, errChan
	}

	// Close reports the outcome on errChan.
	return &localWriter{
		f:       f,
		errChan: errChan,
		path:    fullPath,
	}, errChan
}

func (p *LocalProvider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := p.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (p *LocalProvider) GetDownloadURL(key string) string {
	fullPath := filepath.Join(p.basePath, filepath.FromSlash(key))
	abs, _ := filepath.Abs(fullPath)
	return fmt.Sprintf("file://%s", abs)
}

type localWriter struct {
	f       *os.File
	errChan chan error
	path    string
}

func (w *localWriter) Write(p []byte) (n int, err error) {
	return w.f.Write(p)
}

func (w *localWriter) Close() error {
	err := w.f.Sync()
	if closeErr := w.f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		w.errChan <- err
	} else {
		slog.Debug("Local mirror write completed", "path", w.path)
		w.errChan <- nil
	}
	close(w.errChan)
	return err
}
