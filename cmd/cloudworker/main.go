// ABOUTME: Entry point for coven-cloudworker
// ABOUTME: Starts remote agent sessions and keeps their status reconciled in the background

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _                 _                     _
  ___| | ___  _   _  __| |_      _____  _ __| | _____ _ __
 / __| |/ _ \| | | |/ _' \ \ /\ / / _ \| '__| |/ / _ \ '__|
| (__| | (_) | |_| | (_| |\ V  V / (_) | |  |   <  __/ |
 \___|_|\___/ \__,_|\__,_| \_/\_/ \___/|_|  |_|\_\___|_|
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cloudworker <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                       Poll tracked sessions until interrupted")
	fmt.Fprintln(w, "  start --prompt TEXT         Start a new remote session")
	fmt.Fprintln(w, "  list                        List tracked sessions")
	fmt.Fprintln(w, "  status ID                   Refresh and show one session")
	fmt.Fprintln(w, "  cancel ID                   Cancel a running session")
	fmt.Fprintln(w, "  feedback ID MESSAGE         Send a message to a running session")
	fmt.Fprintln(w, "  approve ID                  Approve the pending plan of a session")
	fmt.Fprintln(w, "  artifacts ID                Show the output of a completed session")
	fmt.Fprintln(w, "  sources                     List repositories the provider can access")
	fmt.Fprintln(w, "  version                     Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts --config PATH (default $CLOUDWORKER_CONFIG or ~/.config/coven/cloudworker.yaml).")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one subcommand.
func run(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	switch command {
	case "serve":
		return runServe(ctx, args, stdout, stderr)
	case "start":
		return runStart(ctx, args, stdout, stderr)
	case "list":
		return runList(ctx, args, stdout, stderr)
	case "status":
		return runStatus(ctx, args, stdout, stderr)
	case "cancel":
		return runCancel(ctx, args, stdout, stderr)
	case "feedback":
		return runFeedback(ctx, args, stdout, stderr)
	case "approve":
		return runApprove(ctx, args, stdout, stderr)
	case "artifacts":
		return runArtifacts(ctx, args, stdout, stderr)
	case "sources":
		return runSources(ctx, args, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "cloudworker %s\n", version)
		return nil
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}
