package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"swarm-provisioner/internal/cli"
	"swarm-provisioner/internal/clustersecret"
	"swarm-provisioner/internal/fileutil"
	"swarm-provisioner/internal/paper"
	"swarm-provisioner/internal/sealed"
	"swarm-provisioner/internal/storage"
)

var version = "dev"

type options struct {
	secret      clustersecret.Options
	recipients  []string
	paperBackup string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("gen-secret", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "gen-secret %s\n\n", version)
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  gen-secret [flags]\n\n")
		fmt.Fprintf(stderr, "Reuses a valid cluster secret or generates a new one, then rewrites the env file.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  SECRETS_DIR             Base directory for default paths (default secrets)\n")
		fmt.Fprintf(stderr, "  CLUSTER_SECRET_PATH     Secret file (default $SECRETS_DIR/cluster.secret)\n")
		fmt.Fprintf(stderr, "  CLUSTER_ENV_PATH        Env file (default $SECRETS_DIR/cluster.env)\n")
		fmt.Fprintf(stderr, "  CLUSTER_ENV_VAR         Variable name in the env file (default CLUSTER_SECRET)\n")
		fmt.Fprintf(stderr, "  SECRETS_AGE_RECIPIENTS  Comma-separated age recipients for a sealed copy\n")
		fmt.Fprintf(stderr, "  STORAGE_TYPE            Mirror written artifacts to \"local\" or \"s3\"\n")
	}

	secretPath := fs.String("secret-path", "", "Cluster secret file (overrides CLUSTER_SECRET_PATH)")
	envPath := fs.String("env-path", "", "Env file to write (overrides CLUSTER_ENV_PATH)")
	envVar := fs.String("env-var", "", "Variable name bound in the env file (overrides CLUSTER_ENV_VAR)")
	sealTo := fs.StringSlice("seal-to", nil, "age recipient to seal a copy of the secret to (repeatable)")
	paperBackup := fs.String("paper-backup", "", "Also write a printable PDF backup of the secret to this path")
	check := fs.Bool("check", false, "Verify the secret and env file without writing anything")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("%v", err))
	}
	if *showVersion {
		fmt.Fprintf(stdout, "gen-secret %s\n", version)
		return 0
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("unexpected arguments: %v", fs.Args()))
	}

	rt, err := cli.Bootstrap(ctx, stdout, stderr)
	if err != nil {
		return cli.Exit(stderr, err)
	}

	opts := options{
		secret: clustersecret.Options{
			SecretPath: firstNonEmpty(*secretPath, rt.Config.ClusterSecretPath),
			EnvPath:    firstNonEmpty(*envPath, rt.Config.ClusterEnvPath),
			EnvVar:     firstNonEmpty(*envVar, rt.Config.ClusterEnvVar),
		},
		recipients:  *sealTo,
		paperBackup: *paperBackup,
	}
	if len(opts.recipients) == 0 {
		opts.recipients = rt.Config.AgeRecipients
	}

	if *check {
		return cli.Exit(stderr, checkSecret(rt, opts.secret))
	}
	return cli.Exit(stderr, provision(ctx, rt, opts))
}

func provision(ctx context.Context, rt *cli.Runtime, opts options) error {
	res, err := clustersecret.Provision(opts.secret)
	if err != nil {
		return err
	}
	fingerprint := clustersecret.Fingerprint(res.Secret)
	if res.Generated {
		rt.Logger.Info("Cluster secret generated", "path", opts.secret.SecretPath, "fingerprint", fingerprint)
		rt.Printf("Generated new cluster secret")
	} else {
		rt.Logger.Info("Reusing existing cluster secret", "path", opts.secret.SecretPath, "fingerprint", fingerprint)
	}

	rt.Printf("%s=%s", opts.secret.EnvVar, res.Secret)
	rt.Printf("Wrote %s and %s", opts.secret.SecretPath, opts.secret.EnvPath)

	artifacts := []storage.Artifact{
		storage.NewArtifact(opts.secret.SecretPath),
		storage.NewArtifact(opts.secret.EnvPath),
	}

	if len(opts.recipients) > 0 {
		sealedPath, err := sealSecret(res.Secret, opts)
		if err != nil {
			return err
		}
		rt.Logger.Info("Cluster secret sealed", "path", sealedPath, "recipients", len(opts.recipients))
		rt.Printf("Sealed cluster secret to %d recipient(s): %s", len(opts.recipients), sealedPath)
		// Only the sealed copy leaves the host when recipients are configured.
		artifacts = []storage.Artifact{storage.NewArtifact(sealedPath)}
	}

	if opts.paperBackup != "" {
		sheet := paper.Sheet{
			Title:       "Cluster secret",
			Label:       opts.secret.SecretPath,
			Value:       res.Secret,
			Fingerprint: fingerprint,
			Created:     time.Now(),
		}
		if err := rt.WritePaperBackup(opts.paperBackup, sheet); err != nil {
			return err
		}
	}

	return rt.MirrorArtifacts(ctx, artifacts...)
}

func sealSecret(secret string, opts options) (string, error) {
	ciphertext, err := sealed.Seal([]byte(secret+"\n"), opts.recipients)
	if err != nil {
		return "", fmt.Errorf("seal cluster secret: %w", err)
	}
	path := opts.secret.SecretPath + sealed.Extension
	if err := fileutil.EnsureParent(path); err != nil {
		return "", err
	}
	if err := fileutil.WriteAtomic(path, ciphertext, 0o600); err != nil {
		return "", fmt.Errorf("write sealed secret: %w", err)
	}
	return path, nil
}

func checkSecret(rt *cli.Runtime, opts clustersecret.Options) error {
	secret, err := clustersecret.Check(opts)
	if err != nil {
		return err
	}
	rt.Printf("%s and %s agree (fingerprint %s)", opts.SecretPath, opts.EnvPath, clustersecret.Fingerprint(secret))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
