// Package cli — list.go implements the "mergin list" command.
//
// List shows projects visible on the server as a text table or JSON
// array. An optional --flag narrows the listing to the user's own
// projects ("created") or projects shared with the user ("shared");
// without it, all public projects are returned.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lutraconsulting/mergin-go/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// flag filters the server listing: "created", "shared" or empty.
	flag string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects on the server",
		Long: `List projects on the server.

Examples:
  mergin list
  mergin list --flag created
  mergin list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.flag, "flag", "",
		"Filter projects: 'created' for own projects, 'shared' for projects shared with you (default: all public)")

	return cmd
}

// runList fetches the listing and prints it.
func runList(ctx context.Context, flags *listFlags) error {
	if flags.flag != "" && flags.flag != "created" && flags.flag != "shared" {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid --flag value %q: valid values are created, shared", flags.flag))
	}

	log := newLogger()
	defer func() { _ = log.Sync() }()

	c, err := buildClient(log, flags.flag != "")
	if err != nil {
		return err
	}

	projects, err := c.ListProjects(ctx, flags.flag)
	if err != nil {
		return err
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].FullName() < projects[j].FullName()
	})

	printListResult(projects)
	return nil
}

// printListResult outputs the listing in text or JSON format.
func printListResult(projects []model.ProjectInfo) {
	if IsJSONOutput() {
		printListResultJSON(projects)
	} else {
		printListResultText(projects)
	}
}

// printListResultJSON outputs the listing as structured JSON under a
// top-level "projects" key.
func printListResultJSON(projects []model.ProjectInfo) {
	type projectJSON struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
		Version   string `json:"version"`
		DiskUsage int64  `json:"diskUsage"`
	}
	type resultJSON struct {
		Projects []projectJSON `json:"projects"`
	}

	result := resultJSON{Projects: make([]projectJSON, 0, len(projects))}
	for _, p := range projects {
		result.Projects = append(result.Projects, projectJSON{
			Namespace: p.Namespace,
			Name:      p.Name,
			Version:   p.Version,
			DiskUsage: p.DiskUsage,
		})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printListResultText outputs the listing as an aligned text table with
// sizes in megabytes, matching the original client's format.
func printListResultText(projects []model.ProjectInfo) {
	if len(projects) == 0 {
		fmt.Println("No projects found.")
		return
	}
	for _, p := range projects {
		fmt.Printf("  %-40s\t%6.1f MB\t%s\n",
			p.FullName(), formatMegabytes(p.DiskUsage), p.Version)
	}
}

// formatMegabytes converts a byte count to megabytes for display.
func formatMegabytes(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
