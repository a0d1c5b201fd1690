package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/srediag/fsplugin/api"
	"github.com/srediag/fsplugin/plugin"
)

func (a *app) watchSetCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "watch-set",
		Short: "List the repos the sync engine watches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			return a.withClient(a.clientConfig(), func(c *plugin.FinderSyncClient) error {
				repos, err := c.WatchSet(ctxOrBackground(cmd.Context()))
				if err != nil {
					return explain(err)
				}
				return writeRepos(a.stdout, format, repos)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "table", "Output format (table, json, yaml)")
	return cmd
}

func validateFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeRepos(w io.Writer, format string, repos []api.LocalRepo) error {
	if repos == nil {
		repos = []api.LocalRepo{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(repos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(repos); err != nil {
			return err
		}
		return enc.Close()
	default:
		table := tablewriter.NewWriter(w)
		table.Header("Worktree", "Status")
		for _, r := range repos {
			if err := table.Append([]string{r.Worktree, r.Status.String()}); err != nil {
				return err
			}
		}
		return table.Render()
	}
}

// ctxOrBackground keeps commands usable when executed without a context.
func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
