package commands

import (
	"context"

	"github.com/Sternrassler/mattermost-client/pkg/mattermost"
	"github.com/spf13/cobra"
)

var fileColumns = []column{
	col("ID", "id"),
	col("Name", "name"),
	col("Extension", "extension"),
	col("Size", "size"),
	col("Post", "post_id"),
	{header: "Created", field: "create_at", format: formatMillis},
}

func (a *app) newFilesCommand() *cobra.Command {
	var (
		extensions []string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List team files",
		Long: `List the files of the team set by --team-id by searching for each
file extension in turn. A file matching several searches is listed once
per match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			var exts []string
			if len(extensions) > 0 {
				exts = extensions
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				return printSeq(cmd.OutOrStdout(), format, fileColumns, c.AllFiles(ctx, exts), limit)
			})
		},
	}

	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "extensions to search (default is a built-in list of common types)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many files (0 for all)")

	return cmd
}
