package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"swarm-provisioner/internal/cli"
	"swarm-provisioner/internal/clustersecret"
	"swarm-provisioner/internal/paper"
	"swarm-provisioner/internal/storage"
	"swarm-provisioner/internal/swarmkey"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("generate-swarm-key", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "generate-swarm-key %s\n\n", version)
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  generate-swarm-key [flags]\n\n")
		fmt.Fprintf(stderr, "Writes a new private network swarm key. The output directory must exist.\n")
		fmt.Fprintf(stderr, "The key is owner-only (0600); pass --mode 0644 when a container running as\n")
		fmt.Fprintf(stderr, "another user reads it through a bind mount.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  SECRETS_DIR     Base directory for default paths (default secrets)\n")
		fmt.Fprintf(stderr, "  SWARM_KEY_PATH  Swarm key output (default $SECRETS_DIR/swarm.key)\n")
		fmt.Fprintf(stderr, "  STORAGE_TYPE    Mirror written artifacts to \"local\" or \"s3\"\n")
	}

	out := fs.String("out", "", "Swarm key output path (overrides SWARM_KEY_PATH)")
	check := fs.String("check", "", "Validate an existing swarm key at this path instead of generating one")
	paperBackup := fs.String("paper-backup", "", "Also write a printable PDF backup of the key to this path")
	mode := fs.String("mode", "0600", "Octal file mode of the written key")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("%v", err))
	}
	if *showVersion {
		fmt.Fprintf(stdout, "generate-swarm-key %s\n", version)
		return 0
	}
	if fs.NArg() != 0 {
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("unexpected arguments: %v", fs.Args()))
	}
	perm, err := parseMode(*mode)
	if err != nil {
		return cli.Exit(stderr, err)
	}

	rt, err := cli.Bootstrap(ctx, stdout, stderr)
	if err != nil {
		return cli.Exit(stderr, err)
	}

	if *check != "" {
		return cli.Exit(stderr, checkKey(rt, *check))
	}

	path := *out
	if path == "" {
		path = rt.Config.SwarmKeyPath
	}
	return cli.Exit(stderr, generate(ctx, rt, path, perm, *paperBackup))
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o777 {
		return 0, cli.Usagef("invalid --mode %q: want an octal permission such as 0600", s)
	}
	return os.FileMode(v), nil
}

func generate(ctx context.Context, rt *cli.Runtime, path string, perm os.FileMode, paperBackup string) error {
	key, err := swarmkey.Generate(path, perm)
	if err != nil {
		return err
	}
	fingerprint := clustersecret.Fingerprint(key.Hex())
	rt.Logger.Info("Swarm key generated", "path", path, "mode", perm.String(), "fingerprint", fingerprint)
	rt.Printf("Wrote %s", path)

	if paperBackup != "" {
		sheet := paper.Sheet{
			Title:       "Swarm key",
			Label:       path,
			Value:       key.Hex(),
			Fingerprint: fingerprint,
			Created:     time.Now(),
		}
		if err := rt.WritePaperBackup(paperBackup, sheet); err != nil {
			return err
		}
	}

	return rt.MirrorArtifacts(ctx, storage.NewArtifact(path))
}

func checkKey(rt *cli.Runtime, path string) error {
	key, err := swarmkey.Load(path)
	if err != nil {
		return err
	}
	rt.Printf("%s: valid swarm key (fingerprint %s)", path, clustersecret.Fingerprint(key.Hex()))
	return nil
}
