// Package cli — status.go implements the "mergin status" command.
//
// Status shows both sides of the sync state for the project in the
// current directory: what a pull would fetch from the server and what a
// push would upload.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/model"
	"github.com/lutraconsulting/mergin-go/internal/project"
)

// NewStatusCommand creates the "status" cobra command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show all changes in project files - upstream and local",
		Long: `Show the sync state of the project in the current directory:
server changes a pull would apply, and local changes a push would upload.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

// runStatus computes pull and push change sets and prints them.
func runStatus(ctx context.Context) error {
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
	md, err := p.Metadata()
	if err != nil {
		return err
	}
	namespace, name, err := model.ParseProjectName(md.Name)
	if err != nil {
		return err
	}

	c, err := buildClient(log, false)
	if err != nil {
		return err
	}

	info, err := c.ProjectInfo(ctx, namespace, name, md.Version)
	if err != nil {
		return err
	}
	pullChanges, err := p.PullChanges(info.Files)
	if err != nil {
		return err
	}
	pushChanges, err := p.PushChanges()
	if err != nil {
		return err
	}

	printStatusResult(md, info, pullChanges, pushChanges)
	return nil
}

// printStatusResult outputs both change sets in text or JSON format.
func printStatusResult(md model.Metadata, info model.ProjectInfo, pull, push model.Changes) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"project":       md.Name,
			"localVersion":  md.Version,
			"serverVersion": info.Version,
			"pull":          pull,
			"push":          push,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Project %s: local %s, server %s\n", md.Name, md.Version, info.Version)
	fmt.Println("### Server changes:")
	printChanges(pull)
	fmt.Println("### Local changes:")
	printChanges(push)
}

// printChanges renders one change set grouped by change type, in the
// original client's diff format.
func printChanges(changes model.Changes) {
	if changes.Empty() {
		fmt.Println("  no changes")
		return
	}

	if len(changes.Renamed) > 0 {
		fmt.Println("\n>>> Renamed:")
		for _, f := range changes.Renamed {
			fmt.Printf("%s -> %s\n", f.Path, f.NewPath)
		}
	}
	if len(changes.Removed) > 0 {
		fmt.Println("\n>>> Removed:")
		for _, f := range changes.Removed {
			fmt.Printf("- %s\n", f.Path)
		}
	}
	if len(changes.Added) > 0 {
		fmt.Println("\n>>> Added:")
		for _, f := range changes.Added {
			fmt.Printf("+ %s\n", f.Path)
		}
	}
	if len(changes.Updated) > 0 {
		fmt.Println("\n>>> Modified:")
		for _, f := range changes.Updated {
			fmt.Printf("M %s\n", f.Path)
		}
	}
	fmt.Println()
}
