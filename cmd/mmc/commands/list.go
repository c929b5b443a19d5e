package commands

import (
	"context"
	"iter"

	"github.com/Sternrassler/mattermost-client/pkg/mattermost"
	"github.com/Sternrassler/mattermost-client/pkg/pagination"
	"github.com/spf13/cobra"
)

var (
	teamColumns = []column{
		col("ID", "id"),
		col("Name", "name"),
		col("Display Name", "display_name"),
		col("Type", "type"),
	}

	channelColumns = []column{
		col("ID", "id"),
		col("Team", "team_id"),
		col("Name", "name"),
		col("Display Name", "display_name"),
		col("Type", "type"),
		{header: "Deleted", field: "delete_at", format: formatDeleted},
	}

	userColumns = []column{
		col("ID", "id"),
		col("Username", "username"),
		col("Email", "email"),
		col("Roles", "roles"),
		{header: "Deleted", field: "delete_at", format: formatDeleted},
	}

	botColumns = []column{
		col("User ID", "user_id"),
		col("Username", "username"),
		col("Display Name", "display_name"),
		col("Owner", "owner_id"),
	}

	emojiColumns = []column{
		col("ID", "id"),
		col("Name", "name"),
		col("Creator", "creator_id"),
	}
)

// newListCommand builds a command that prints one page-paginated collection.
func (a *app) newListCommand(use, short, long string, columns []column, list func(context.Context, *mattermost.Client) iter.Seq2[pagination.Entity, error]) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				return printSeq(cmd.OutOrStdout(), format, columns, list(ctx, c), limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many results (0 for all)")

	return cmd
}

func (a *app) newTeamsCommand() *cobra.Command {
	return a.newListCommand("teams", "List teams", "List every team visible to the token",
		teamColumns, func(ctx context.Context, c *mattermost.Client) iter.Seq2[pagination.Entity, error] {
			return c.Teams(ctx)
		})
}

func (a *app) newUsersCommand() *cobra.Command {
	return a.newListCommand("users", "List users", "List every user account on the server",
		userColumns, func(ctx context.Context, c *mattermost.Client) iter.Seq2[pagination.Entity, error] {
			return c.Users(ctx)
		})
}

func (a *app) newBotsCommand() *cobra.Command {
	return a.newListCommand("bots", "List bots", "List every bot account on the server",
		botColumns, func(ctx context.Context, c *mattermost.Client) iter.Seq2[pagination.Entity, error] {
			return c.Bots(ctx)
		})
}

func (a *app) newEmojiCommand() *cobra.Command {
	return a.newListCommand("emoji", "List custom emoji", "List every custom emoji on the server",
		emojiColumns, func(ctx context.Context, c *mattermost.Client) iter.Seq2[pagination.Entity, error] {
			return c.Emoji(ctx)
		})
}

func (a *app) newChannelsCommand() *cobra.Command {
	var (
		limit          int
		includeDeleted bool
		count          bool
	)

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels",
		Long:  "List every channel on the server. Requires the manage_system permission.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				if count {
					total, err := c.TotalChannelsCount(ctx)
					if err != nil {
						return err
					}
					return printFields(cmd.OutOrStdout(), format, []field{
						{Name: "Total Channels", Key: "total_count", Value: total},
					})
				}

				channels := c.Channels(ctx, mattermost.ChannelsOptions{IncludeDeleted: includeDeleted})
				return printSeq(cmd.OutOrStdout(), format, channelColumns, channels, limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many results (0 for all)")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include archived channels")
	cmd.Flags().BoolVar(&count, "count", false, "print the total number of channels only")

	return cmd
}
