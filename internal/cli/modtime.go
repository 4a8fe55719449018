// Package cli — modtime.go implements the "mergin modtime" command,
// a debugging aid that lists modification times for every entry under a
// directory.
package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// NewModtimeCommand creates the "modtime" cobra command.
func NewModtimeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modtime [directory]",
		Short: "Show files modification time info. For debug purposes only.",

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runModtime(dir)
		},
	}
}

// runModtime walks the directory and prints each entry's mtime.
func runModtime(dir string) error {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to resolve directory", err)
	}

	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}
		rel, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		fmt.Println(rel)
		fmt.Printf("mtime %s\n\n", info.ModTime().Format("2006-01-02 15:04:05.000000"))
		return nil
	})
}
