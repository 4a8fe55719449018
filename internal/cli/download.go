// Package cli — download.go implements the "mergin download" command.
//
// Download fetches the latest version of a server project into a local
// directory and initializes its .mergin metadata, making the directory
// ready for status/pull/push.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/sync"
)

// downloadFlags holds the flag values for the download command.
type downloadFlags struct {
	parallel bool // --parallel: ranged concurrent requests
}

// NewDownloadCommand creates the "download" cobra command.
func NewDownloadCommand() *cobra.Command {
	flags := &downloadFlags{}

	cmd := &cobra.Command{
		Use:   "download <namespace/project> [directory]",
		Short: "Download the latest version of a project",
		Long: `Download the latest version of a mergin project.

The target directory defaults to the project name in the current
directory and must be empty or absent.

Examples:
  mergin download alice/survey
  mergin download alice/survey ~/projects/survey
  mergin download --parallel=false alice/survey`,

		Args: cobra.RangeArgs(1, 2),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			}
			return runDownload(cmd.Context(), args[0], dir, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.parallel, "parallel", true,
		"Download by sending parallel ranged requests (--parallel=false to disable)")

	return cmd
}

// runDownload plans and executes the download with a progress bar.
func runDownload(ctx context.Context, fullName, dir string, flags *downloadFlags) error {
	if dir == "" {
		// Default target: project name under the current directory.
		dir = path.Base(fullName)
	}

	log := newLogger()
	defer func() { _ = log.Sync() }()

	c, err := buildClient(log, false)
	if err != nil {
		return err
	}

	if !IsJSONOutput() {
		fmt.Printf("Downloading into %s\n", dir)
	}

	job, err := sync.PlanDownload(ctx, c, fullName, dir, flags.parallel, log)
	if err != nil {
		return err
	}
	if err := runWithProgress(ctx, job, "downloading"); err != nil {
		return err
	}

	if IsJSONOutput() {
		result := map[string]interface{}{
			"project":   fullName,
			"directory": dir,
			"bytes":     job.Total(),
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println("Done")
	}
	return nil
}
