// Package cli implements the cobra-based CLI commands for mergin.
//
// Each subcommand (login, init, list, download, status, pull, push,
// remove, modtime) is defined in its own file within this package. This
// file defines the root command that serves as the parent for all
// subcommands and handles global flags and exit-code mapping.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/client"
	"github.com/lutraconsulting/mergin-go/internal/config"
	"github.com/lutraconsulting/mergin-go/internal/model"
)

// Global flag variables shared across all subcommands. These are bound
// to cobra persistent flags on the root command, which makes them
// available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables debug-level engine logging on stderr.
	verbose bool
)

// Version, Commit and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mergin",
		Short: "Synchronize local projects with a Mergin server",
		Long: `mergin synchronizes a local project directory with a Mergin server.

A project directory carries its sync state in a .mergin/ subdirectory.
Typical workflow: download a project, edit files locally, inspect the
difference with status, then push local changes or pull server changes.

Server and credentials come from the MERGIN_URL and MERGIN_AUTH
environment variables (see the login command) or ~/.mergin/config.yml.`,

		// Errors are formatted by Execute, not by cobra.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewLoginCommand())
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewDownloadCommand())
	rootCmd.AddCommand(NewStatusCommand())
	rootCmd.AddCommand(NewPullCommand())
	rootCmd.AddCommand(NewPushCommand())
	rootCmd.AddCommand(NewRemoveCommand())
	rootCmd.AddCommand(NewModtimeCommand())

	return rootCmd
}

// Execute runs the root command under ctx and handles exit codes.
// This is the main entry point called from main.go. The context is
// cancelled on SIGINT, which aborts in-flight transfer jobs.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		os.Exit(int(exitCode(err)))
	}
}

// exitCode maps an error chain to a process exit code. CLIError carries
// its own code; domain sentinels are translated; everything else is a
// general error.
func exitCode(err error) model.ExitCode {
	var cliErr *model.CLIError
	switch {
	case errors.As(err, &cliErr):
		return cliErr.Code
	case errors.Is(err, context.Canceled):
		return model.ExitCancelled
	case errors.Is(err, model.ErrInvalidProject):
		return model.ExitInvalidProject
	case errors.Is(err, client.ErrAuth):
		return model.ExitAuthError
	case errors.Is(err, client.ErrNotFound), errors.Is(err, client.ErrServer):
		return model.ExitServerError
	default:
		return model.ExitGeneralError
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors always go to
// stderr; stdout is reserved for successful command output.
func printError(err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return
	}
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": err.Error(),
			},
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// newLogger builds the engine logger for the current run, honoring the
// --verbose flag.
func newLogger() *zap.Logger {
	log, err := config.NewLogger(verbose)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// buildClient loads the configuration and constructs the server client.
// Commands that require credentials pass needAuth to fail early with a
// clear message instead of a 401 from the server.
func buildClient(log *zap.Logger, needAuth bool) (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, model.NewCLIError(model.ExitGeneralError,
			"no server configured: set MERGIN_URL or run mergin login")
	}
	if needAuth && cfg.AuthToken == "" {
		return nil, model.NewCLIError(model.ExitAuthError,
			"no credentials: set MERGIN_AUTH or run mergin login")
	}

	return client.New(cfg.URL,
		client.WithAuthToken(cfg.AuthToken),
		client.WithLogger(log),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithRetry(cfg.RetryAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		client.WithUserAgent("mergin-go/"+Version),
	)
}
