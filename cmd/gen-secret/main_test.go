package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"filippo.io/age"

	"swarm-provisioner/internal/sealed"
)

var envLine = regexp.MustCompile(`(?m)^CLUSTER_SECRET=([0-9a-f]{64})$`)

func runOK(t *testing.T, args ...string) (string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
		t.Fatalf("run(%v) = %d, stderr: %s", args, code, stderr.String())
	}
	return stdout.String(), stderr.String()
}

func TestRunGeneratesThenReuses(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", filepath.Join(dir, "secrets"))

	stdout, stderr := runOK(t)
	if !strings.Contains(stdout, "Generated new cluster secret") {
		t.Errorf("first run did not report generation: %q", stdout)
	}
	match := envLine.FindStringSubmatch(stdout)
	if match == nil {
		t.Fatalf("stdout lacks CLUSTER_SECRET line: %q", stdout)
	}
	secret := match[1]
	if strings.Contains(stderr, secret) {
		t.Error("secret written to logs")
	}

	secretFile, _ := os.ReadFile(filepath.Join(dir, "secrets", "cluster.secret"))
	if string(secretFile) != secret+"\n" {
		t.Errorf("cluster.secret = %q", secretFile)
	}
	envFile, _ := os.ReadFile(filepath.Join(dir, "secrets", "cluster.env"))
	if string(envFile) != "CLUSTER_SECRET="+secret+"\n" {
		t.Errorf("cluster.env = %q", envFile)
	}

	stdout, _ = runOK(t)
	if strings.Contains(stdout, "Generated new cluster secret") {
		t.Error("second run regenerated the secret")
	}
	if again := envLine.FindStringSubmatch(stdout); again == nil || again[1] != secret {
		t.Errorf("second run reported %v, want %s", again, secret)
	}
	if !strings.Contains(stdout, "Wrote ") {
		t.Errorf("confirmation missing: %q", stdout)
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "a", "s.secret")
	envPath := filepath.Join(dir, "b", "s.env")

	stdout, _ := runOK(t, "--secret-path", secretPath, "--env-path", envPath, "--env-var", "IPFS_CLUSTER_SECRET")
	if !strings.Contains(stdout, "IPFS_CLUSTER_SECRET=") {
		t.Errorf("stdout = %q", stdout)
	}
	envFile, err := os.ReadFile(envPath)
	if err != nil {
		t.Fatalf("env file not written: %v", err)
	}
	if !strings.HasPrefix(string(envFile), "IPFS_CLUSTER_SECRET=") {
		t.Errorf("env file = %q", envFile)
	}
}

func TestRunCheck(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--check"}, &stdout, &stderr); code != 1 {
		t.Fatalf("check before provisioning = %d, want 1", code)
	}

	runOK(t)
	stdout.Reset()
	if code := run(context.Background(), []string{"--check"}, &stdout, &stderr); code != 0 {
		t.Fatalf("check = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "agree") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunSealsAndMirrorsSealedCopyOnly(t *testing.T) {
	dir := t.TempDir()
	backup := filepath.Join(dir, "backup")
	t.Setenv("SECRETS_DIR", filepath.Join(dir, "secrets"))
	t.Setenv("STORAGE_TYPE", "local")
	t.Setenv("LOCAL_STORAGE_PATH", backup)

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity() error: %v", err)
	}

	stdout, _ := runOK(t, "--seal-to", identity.Recipient().String())
	secret := envLine.FindStringSubmatch(stdout)[1]

	sealedPath := filepath.Join(dir, "secrets", "cluster.secret.age")
	ciphertext, err := os.ReadFile(sealedPath)
	if err != nil {
		t.Fatalf("sealed copy not written: %v", err)
	}
	plaintext, err := sealed.Open(ciphertext, identity.String())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if string(plaintext) != secret+"\n" {
		t.Errorf("sealed plaintext = %q", plaintext)
	}

	if _, err := os.Stat(filepath.Join(backup, "cluster.secret.age")); err != nil {
		t.Errorf("sealed copy not mirrored: %v", err)
	}
	for _, name := range []string{"cluster.secret", "cluster.env"} {
		if _, err := os.Stat(filepath.Join(backup, name)); !os.IsNotExist(err) {
			t.Errorf("plaintext %s mirrored despite sealing", name)
		}
	}
}

func TestRunPaperBackup(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", dir)
	pdf := filepath.Join(dir, "cluster.pdf")

	runOK(t, "--paper-backup", pdf)
	data, err := os.ReadFile(pdf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("paper backup is not a PDF")
	}
}

func TestRunBadRecipient(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--seal-to", "age1bogus"}, &stdout, &stderr); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}

func TestRunBadMirrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECRETS_DIR", dir)
	t.Setenv("STORAGE_TYPE", "ftp")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "STORAGE_TYPE") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("report printed before failing: %q", stdout.String())
	}
	for _, name := range []string{"cluster.secret", "cluster.env"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s written despite a bad mirror setting", name)
		}
	}
}
