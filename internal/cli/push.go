// Package cli — push.go implements the "mergin push" command.
//
// Push uploads local changes from the project in the current directory
// through the server's chunked transaction protocol. A failed or
// interrupted push rolls the transaction back, so the server never holds
// a half-uploaded version.
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

// pushFlags holds the flag values for the push command.
type pushFlags struct {
	parallel bool // --parallel: concurrent chunk uploads
}

// NewPushCommand creates the "push" cobra command.
func NewPushCommand() *cobra.Command {
	flags := &pushFlags{}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload local changes to the server",
		Long: `Upload local changes from the project in the current directory.

The push is transactional: it either creates a complete new project
version on the server or leaves the server untouched.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.parallel, "parallel", true,
		"Upload by sending parallel requests (--parallel=false to disable)")

	return cmd
}

// runPush plans and executes the push with a progress bar.
func runPush(ctx context.Context, flags *pushFlags) error {
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
	c, err := buildClient(log, true)
	if err != nil {
		return err
	}

	job, err := sync.PlanPush(ctx, c, p, flags.parallel, log)
	if err != nil {
		return err
	}
	if job.Changes().Empty() {
		if !IsJSONOutput() {
			fmt.Println("Nothing to push")
		}
		return nil
	}

	if err := runWithProgress(ctx, job, "pushing"); err != nil {
		return err
	}

	if IsJSONOutput() {
		result := map[string]interface{}{
			"changes": job.Changes().Count(),
			"bytes":   job.Total(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println("Done")
	}
	return nil
}
