package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"swarm-provisioner/internal/swarmkey"
)

func TestRunDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", dir)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}

	path := filepath.Join(dir, "swarm.key")
	key, err := swarmkey.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if strings.Contains(stdout.String(), key.Hex()) {
		t.Error("key printed to stdout")
	}
	if strings.Contains(stderr.String(), key.Hex()) {
		t.Error("key written to logs")
	}
	if !strings.Contains(stdout.String(), "Wrote "+path) {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunMissingDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "swarm.key")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--out", out}, &stdout, &stderr); code == 0 {
		t.Fatal("run() succeeded without an output directory")
	}
	if _, err := os.Stat(filepath.Dir(out)); !os.IsNotExist(err) {
		t.Errorf("output directory created: %v", err)
	}
}

func TestRunCheck(t *testing.T) {
	out := filepath.Join(t.TempDir(), "swarm.key")
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--out", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("generate: %d %s", code, stderr.String())
	}
	before, _ := os.ReadFile(out)

	stdout.Reset()
	if code := run(context.Background(), []string{"--check", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("check: %d %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "valid swarm key") {
		t.Errorf("stdout = %q", stdout.String())
	}
	after, _ := os.ReadFile(out)
	if !bytes.Equal(before, after) {
		t.Error("--check rewrote the key")
	}

	bad := filepath.Join(t.TempDir(), "bad.key")
	if err := os.WriteFile(bad, []byte("nonsense\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if code := run(context.Background(), []string{"--check", bad}, &stdout, &stderr); code != 1 {
		t.Errorf("check of invalid key = %d, want 1", code)
	}
}

func TestRunPaperBackupAndMirror(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	t.Setenv("STORAGE_TYPE", "local")
	t.Setenv("LOCAL_STORAGE_PATH", backup)

	out := filepath.Join(dir, "swarm.key")
	pdf := filepath.Join(dir, "print", "swarm.pdf")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--out", out, "--paper-backup", pdf}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}

	data, err := os.ReadFile(pdf)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("paper backup is not a PDF")
	}

	original, _ := os.ReadFile(out)
	mirrored, err := os.ReadFile(filepath.Join(backup, "swarm.key"))
	if err != nil {
		t.Fatalf("read mirror: %v", err)
	}
	if !bytes.Equal(original, mirrored) {
		t.Error("mirrored key differs from the written key")
	}
}

func TestRunRejectsArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"extra"}, &stdout, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}

func TestRunMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantPerm os.FileMode
	}{
		{name: "default owner only", wantPerm: 0o600},
		{name: "world readable", args: []string{"--mode", "0644"}, wantPerm: 0o644},
		{name: "not octal", args: []string{"--mode", "rw-r--r--"}, wantCode: 1},
		{name: "out of range", args: []string{"--mode", "7777"}, wantCode: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "swarm.key")
			args := append([]string{"--out", out}, test.args...)

			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), args, &stdout, &stderr); code != test.wantCode {
				t.Fatalf("run() = %d, want %d, stderr: %s", code, test.wantCode, stderr.String())
			}
			if test.wantCode != 0 {
				if _, err := os.Stat(out); !os.IsNotExist(err) {
					t.Error("key written despite an invalid --mode")
				}
				return
			}
			info, err := os.Stat(out)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != test.wantPerm {
				t.Errorf("mode = %v, want %v", info.Mode().Perm(), test.wantPerm)
			}
		})
	}
}
