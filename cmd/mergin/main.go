// Package main is the entry point for the mergin CLI.
//
// This binary synchronizes local project directories with a Mergin
// server. It delegates all functionality to the internal/cli package,
// which defines cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// during the release process. During development, they default to
// "dev", "none", and "unknown" respectively.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/lutraconsulting/mergin-go/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// SIGINT cancels the command context, which aborts in-flight
	// transfers and rolls back any open push transaction.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := cli.NewRootCommand()
	cli.Execute(ctx, rootCmd)
}
