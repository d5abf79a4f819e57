package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"judgebench/internal/app"
	"judgebench/internal/apperr"
	"judgebench/internal/schemas"
)

// judgeCatalog is the YAML file format accepted by "judges import".
type judgeCatalog struct {
	Judges []schemas.CreateJudgeRequest `yaml:"judges"`
}

func newJudgesCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judges",
		Short: "Manage judges",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List judges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				judges, err := a.Store.ListJudges(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout(), "ID", "Name", "Model", "Active", "Created")
				for _, j := range judges {
					_ = t.Append([]string{
						strconv.FormatInt(j.ID, 10), j.Name, j.ModelName,
						strconv.FormatBool(j.Active), j.CreatedAt.Format(time.RFC3339),
					})
				}
				return t.Render()
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Create judges from a YAML catalog",
		Long: `Create judges from a YAML catalog of the form:

  judges:
    - name: strict
      modelName: gpt-4o-mini
      prompt: |
        Pass only answers that are fully correct.

Judges whose name already exists are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := readCatalog(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				created, skipped := 0, 0
				for _, req := range catalog.Judges {
					j, err := a.Store.CreateJudge(cmd.Context(), req)
					switch {
					case errors.Is(err, apperr.ErrConflict):
						skipped++
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %q: already exists\n", req.Name)
					case err != nil:
						return fmt.Errorf("judge %q: %w", req.Name, err)
					default:
						created++
						fmt.Fprintf(cmd.OutOrStdout(), "created judge %d %q\n", j.ID, j.Name)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d skipped\n", created, skipped)
				return nil
			})
		},
	})
	return cmd
}

func readCatalog(path string) (judgeCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return judgeCatalog{}, fmt.Errorf("reading catalog: %w", err)
	}
	var c judgeCatalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return judgeCatalog{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(c.Judges) == 0 {
		return judgeCatalog{}, fmt.Errorf("%s defines no judges", path)
	}
	return c, nil
}
