// Package cli holds the start-up sequence and exit handling shared by the
// provisioning binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"swarm-provisioner/internal/config"
	"swarm-provisioner/internal/fileutil"
	"swarm-provisioner/internal/paper"
	"swarm-provisioner/internal/storage"
)

// UsageError reports a malformed invocation, detected before any file is touched.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Message
}

// Usagef creates a UsageError.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// IsUsageError returns true if err is a UsageError.
func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

// Runtime is what every command needs after start-up.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger
	RunID  string
	Stdout io.Writer
	// Mirror is nil when STORAGE_TYPE is unset.
	Mirror storage.Provider
}

// Bootstrap loads .env and the environment config, then installs a JSON
// logger on stderr tagged with a fresh run ID. Stdout is left for the report.
// The mirror is built here so a bad storage setting fails before any file is written.
func Bootstrap(ctx context.Context, stdout, stderr io.Writer) (*Runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})).With("run_id", runID)
	slog.SetDefault(logger)

	mirror, err := storage.FromConfig(ctx, cfg, runID)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config: cfg,
		Logger: logger,
		RunID:  runID,
		Stdout: stdout,
		Mirror: mirror,
	}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// Printf writes a line of the human-readable report.
func (r *Runtime) Printf(format string, args ...any) {
	fmt.Fprintf(r.Stdout, format+"\n", args...)
}

// MirrorArtifacts copies artifacts to the configured mirror, if any.
func (r *Runtime) MirrorArtifacts(ctx context.Context, artifacts ...storage.Artifact) error {
	if r.Mirror == nil || len(artifacts) == 0 {
		return nil
	}

	urls, err := storage.Mirror(ctx, r.Mirror, artifacts)
	if err != nil {
		return err
	}
	for _, url := range urls {
		r.Printf("Mirrored %s", url)
	}
	return nil
}

// WritePaperBackup renders sheet as a PDF at path.
func (r *Runtime) WritePaperBackup(path string, sheet paper.Sheet) error {
	if err := fileutil.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create paper backup: %w", err)
	}
	if err := paper.WriteBackupSheet(f, sheet); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close paper backup: %w", err)
	}
	r.Logger.Info("Paper backup written", "path", path)
	r.Printf("Wrote paper backup %s", path)
	return nil
}

// Exit reports err on stderr and returns the process exit code.
func Exit(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if IsUsageError(err) {
		fmt.Fprintln(stderr, err)
		return 1
	}
	slog.Error("Command failed", "error", err)
	fmt.Fprintf(stderr, "error: %v\n", err)
	return 1
}
