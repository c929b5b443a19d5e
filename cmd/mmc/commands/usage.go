package commands

import (
	"context"

	"github.com/Sternrassler/mattermost-client/pkg/mattermost"
	"github.com/spf13/cobra"
)

func (a *app) newUsageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show server usage",
		Long:  "Show the approximate post count and the file storage used by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				posts, err := c.PostsUsage(ctx)
				if err != nil {
					return err
				}
				storage, err := c.StorageUsage(ctx)
				if err != nil {
					return err
				}

				return printFields(cmd.OutOrStdout(), format, []field{
					{Name: "Posts", Key: "posts", Value: posts},
					{Name: "Storage Bytes", Key: "storage_bytes", Value: storage},
				})
			})
		},
	}
}
