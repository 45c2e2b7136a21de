package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"swarm-provisioner/internal/cli"
	"swarm-provisioner/internal/patch"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("patch-bootstrap", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: patch-bootstrap <compose-file> <peer_id>\n\n")
		fmt.Fprintf(stderr, "Replaces every occurrence of the placeholder token in <compose-file>\n")
		fmt.Fprintf(stderr, "with <peer_id> (surrounding whitespace trimmed), in place.\n")
		fmt.Fprintf(stderr, "Put -- before the arguments if the file name starts with a dash.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  BOOTSTRAP_PLACEHOLDER  Token to replace (default REPLACE_ME)\n")
	}

	placeholder := fs.String("placeholder", "", "Placeholder token to replace (overrides BOOTSTRAP_PLACEHOLDER)")
	showVersion := fs.Bool("version", false, "Show version")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("%v", err))
	}
	if *showVersion {
		fmt.Fprintf(stdout, "patch-bootstrap %s\n", version)
		return 0
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return cli.Exit(stderr, cli.Usagef("expected 2 arguments, got %d", fs.NArg()))
	}
	file, peerID := fs.Arg(0), fs.Arg(1)

	rt, err := cli.Bootstrap(context.Background(), stdout, stderr)
	if err != nil {
		return cli.Exit(stderr, err)
	}

	token := *placeholder
	if token == "" {
		token = rt.Config.BootstrapPlaceholder
	}

	count, err := patch.Patch(file, peerID, token)
	if err != nil {
		return cli.Exit(stderr, err)
	}
	rt.Logger.Info("Bootstrap placeholder patched", "file", file, "placeholder", token, "occurrences", count)
	rt.Printf("Patched %s with peer id %s", file, strings.TrimSpace(peerID))
	return 0
}
