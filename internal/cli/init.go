// Package cli — init.go implements the "mergin init" command.
//
// Init creates a new project on the server. When an existing local
// directory is given, it is attached to the new project and its current
// content is uploaded as the first version.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
	"github.com/lutraconsulting/mergin-go/internal/sync"
)

// initFlags holds the flag values for the init command.
type initFlags struct {
	public bool // --public: project visible to everyone
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init <namespace/project> [directory]",
		Short: "Initialize a new project, optionally from an existing directory",
		Long: `Create a new project on the server.

When DIRECTORY is given it must already exist; it is attached to the new
project and its content is uploaded as version v1.

Examples:
  mergin init alice/survey
  mergin init alice/survey ./survey-data
  mergin init --public alice/survey`,

		Args: cobra.RangeArgs(1, 2),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			}
			return runInit(cmd.Context(), args[0], dir, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.public, "public", false, "Public project, visible to everyone")

	return cmd
}

// runInit creates the server project and uploads the initial content
// when a directory is given.
func runInit(ctx context.Context, fullName, dir string, flags *initFlags) error {
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

	if err := c.CreateProject(ctx, namespace, name, flags.public); err != nil {
		return err
	}
	log.Info("project created", zap.String("project", fullName), zap.Bool("public", flags.public))

	if dir != "" {
		// Attach the directory: write the v0 snapshot, then push its
		// content as the first version.
		p, err := project.Open(dir, log)
		if err != nil {
			return err
		}
		md := model.Metadata{Name: fullName, Version: "v0", Files: nil}
		if err := p.SaveMetadata(md); err != nil {
			return err
		}

		job, err := sync.PlanPush(ctx, c, p, true, log)
		if err != nil {
			return err
		}
		if !job.Changes().Empty() {
			if err := runWithProgress(ctx, job, "uploading"); err != nil {
				return err
			}
		}
	}

	if !IsJSONOutput() {
		fmt.Println("Done")
	}
	return nil
}
