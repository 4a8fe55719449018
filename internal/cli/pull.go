// Package cli — pull.go implements the "mergin pull" command.
//
// Pull fetches server changes into the project in the current directory.
// Conflicting local edits are preserved as _conflict_copy files and
// listed in the command output.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
	"github.com/lutraconsulting/mergin-go/internal/sync"
)

// pullFlags holds the flag values for the pull command.
type pullFlags struct {
	parallel bool // --parallel: ranged concurrent requests
}

// NewPullCommand creates the "pull" cobra command.
func NewPullCommand() *cobra.Command {
	flags := &pullFlags{}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch changes from the server",
		Long: `Fetch server changes into the project in the current directory.

Local edits that collide with server changes are preserved as
"_conflict_copy" files next to their originals.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.parallel, "parallel", true,
		"Download by sending parallel ranged requests (--parallel=false to disable)")

	return cmd
}

// runPull plans and executes the pull with a progress bar.
func runPull(ctx context.Context, flags *pullFlags) error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	log := newLogger()
	defer func() { _ = log.Sync() }()

	p, err := project.Open(cwd, log)
	if err != nil {
		return err
	}
	c, err := buildClient(log, false)
	if err != nil {
		return err
	}

	job, err := sync.PlanPull(ctx, c, p, flags.parallel, log)
	if err != nil {
		return err
	}
	if job.Changes().Empty() {
		if !IsJSONOutput() {
			fmt.Println("Already up to date")
		}
		return nil
	}

	if err := runWithProgress(ctx, job, "pulling"); err != nil {
		return err
	}

	printPullResult(job)
	return nil
}

// printPullResult reports applied changes and any conflict copies.
func printPullResult(job *sync.PullJob) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"changes":   job.Changes().Count(),
			"conflicts": job.Conflicts,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, conflict := range job.Conflicts {
		fmt.Printf("Conflict: local edits saved as %s\n", conflict)
	}
	fmt.Println("Done")
}
