package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"swarm-provisioner/internal/cli"
	"swarm-provisioner/internal/identity"
	"swarm-provisioner/internal/patch"
	"swarm-provisioner/internal/storage"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("gen-bootstrap-identity", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "gen-bootstrap-identity %s\n\n", version)
		fmt.Fprintf(stderr, "Usage:\n")
		fmt.Fprintf(stderr, "  gen-bootstrap-identity [flags]\n\n")
		fmt.Fprintf(stderr, "Creates (or reuses) the bootstrap node's libp2p key and prints its peer ID.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExample:\n")
		fmt.Fprintf(stderr, "  gen-bootstrap-identity --patch docker-compose.yml\n")
	}

	out := fs.String("out", "", "Identity key path (overrides BOOTSTRAP_IDENTITY_PATH)")
	patchFile := fs.String("patch", "", "Replace the placeholder in this file with the peer ID")
	placeholder := fs.String("placeholder", "", "Placeholder token for --patch (overrides BOOTSTRAP_PLACEHOLDER)")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("%v", err))
	}
	if *showVersion {
		fmt.Fprintf(stdout, "gen-bootstrap-identity %s\n", version)
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

	path := *out
	if path == "" {
		path = rt.Config.BootstrapIdentityPath
	}
	token := *placeholder
	if token == "" {
		token = rt.Config.BootstrapPlaceholder
	}

	id, generated, err := identity.LoadOrGenerate(path)
	if err != nil {
		return cli.Exit(stderr, err)
	}
	rt.Logger.Info("Bootstrap identity ready", "path", path, "peer_id", id.String(), "generated", generated)
	if generated {
		rt.Printf("Identity saved to %s", path)
	} else {
		rt.Printf("Reusing identity %s", path)
	}
	rt.Printf("Bootstrap peer ID: %s", id)

	if *patchFile != "" {
		count, err := patch.Patch(*patchFile, id.String(), token)
		if err != nil {
			return cli.Exit(stderr, err)
		}
		rt.Logger.Info("Bootstrap placeholder patched", "file", *patchFile, "occurrences", count)
		rt.Printf("Patched %s with peer id %s", *patchFile, id)
	}

	if generated {
		if err := rt.MirrorArtifacts(ctx, storage.NewArtifact(path)); err != nil {
			return cli.Exit(stderr, err)
		}
	}
	return 0
}
