// Package cli — remove.go implements the "mergin remove" command.
//
// Remove deletes a project from the server. When run inside a local copy
// without an explicit project argument, the local directory is removed
// as well.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// NewRemoveCommand creates the "remove" cobra command.
func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [namespace/project]",
		Short: "Remove a project from the server and locally (if it exists)",
		Long: `Remove a project from the server.

Without an argument, the project is identified from the current
directory's metadata, and the local directory is deleted after the
server confirms the removal.`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			fullName := ""
			if len(args) > 0 {
				fullName = args[0]
			}
			return runRemove(cmd.Context(), fullName)
		},
	}
}

// runRemove deletes the project on the server and, when identified from
// the working directory, the local copy too. The local directory is
// removed only after the server delete succeeds.
func runRemove(ctx context.Context, fullName string) error {
	removeLocal := false
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	if fullName == "" {
		md, err := project.Inspect(cwd)
		if err != nil {
			return err
		}
		fullName = md.Name
		removeLocal = true
	}

	namespace, name, err := model.ParseProjectName(fullName)
	if err != nil {
		return err
	}

	log := newLogger()
	defer func() { _ = log.Sync() }()

	c, err := buildClient(log, true)
	if err != nil {
		return err
	}
	if err := c.DeleteProject(ctx, namespace, name); err != nil {
		return err
	}

	if removeLocal {
		if err := os.RemoveAll(cwd); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "project removed on server but local cleanup failed", err)
		}
	}

	if !IsJSONOutput() {
		fmt.Println("Done")
	}
	return nil
}
