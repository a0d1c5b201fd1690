package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/srediag/fsplugin/plugin"
)

func (a *app) shareLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share-link PATH",
		Short: "Ask the sync engine for a share link of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return a.withClient(a.clientConfig(), func(c *plugin.FinderSyncClient) error {
				link, err := c.SharedLink(ctxOrBackground(cmd.Context()), path)
				if err != nil {
					return explain(err)
				}
				_, err = fmt.Fprintln(a.stdout, link)
				return err
			})
		},
	}
}
