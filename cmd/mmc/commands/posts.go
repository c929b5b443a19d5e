package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/mattermost-client/pkg/mattermost"
	"github.com/Sternrassler/mattermost-client/pkg/pagination"
	"github.com/spf13/cobra"
)

var postColumns = []column{
	col("ID", "id"),
	{header: "Created", field: "create_at", format: formatMillis},
	col("User", "user_id"),
	col("Channel", "channel_id"),
	{header: "Message", field: "message", format: truncate(60)},
}

func (a *app) newPostsCommand() *cobra.Command {
	var (
		perPage int
		before  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "posts CHANNEL_ID",
		Short: "List channel posts",
		Long:  "List the posts of a channel from newest to oldest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				posts := c.ChannelPosts(ctx, args[0], perPage, before)
				return printSeq(cmd.OutOrStdout(), format, postColumns, posts, limit)
			})
		},
	}

	cmd.Flags().IntVar(&perPage, "per-page", pagination.DefaultPerPage, "posts requested per page")
	cmd.Flags().StringVar(&before, "before", "", "start below this post id")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many posts (0 for all)")

	return cmd
}

func (a *app) newExportCommand() *cobra.Command {
	cfg := pagination.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "export CHANNEL_ID...",
		Short: "Export the posts of several channels",
		Long: `Fetch the full post history of several channels in parallel.

JSON and YAML output map each channel id to its posts. Table output
prints the number of posts per channel. Channels that were fetched
are printed even when another channel fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				results, fetchErr := c.ChannelsPosts(ctx, args, cfg)
				if err := printExport(cmd, format, args, results); err != nil {
					return err
				}
				return fetchErr
			})
		},
	}

	cmd.Flags().IntVar(&cfg.MaxConcurrency, "concurrency", cfg.MaxConcurrency, "channels fetched in parallel")
	cmd.Flags().IntVar(&cfg.PerPage, "per-page", cfg.PerPage, "posts requested per page")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "time limit per channel")

	return cmd
}

func printExport(cmd *cobra.Command, format string, channelIDs []string, results map[string][]pagination.Entity) error {
	w := cmd.OutOrStdout()

	switch format {
	case OutputFormatJSON, OutputFormatYAML:
		if format == OutputFormatYAML {
			return writeYAML(w, results)
		}
		return jsonEncoder(w).Encode(results)
	default:
		rows := make([]pagination.Entity, 0, len(results))
		for _, id := range channelIDs {
			if posts, ok := results[id]; ok {
				rows = append(rows, pagination.Entity{"channel_id": id, "posts": float64(len(posts))})
			}
		}
		return printEntities(w, format, []column{col("Channel", "channel_id"), col("Posts", "posts")}, rows)
	}
}

func (a *app) newGetPostsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-posts POST_ID...",
		Short: "Get posts by id",
		Long:  "Fetch a list of posts by id in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				posts, err := c.PostsByIDs(ctx, args)
				if err != nil {
					return err
				}
				return printEntities(cmd.OutOrStdout(), format, postColumns, posts)
			})
		},
	}
}

// ErrCancelled is returned when a confirmation prompt is declined.
var ErrCancelled = errors.New("cancelled")

func (a *app) newDeletePostCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete-post POST_ID",
		Short: "Delete a post",
		Long:  "Delete a post. The server keeps it as soft deleted unless configured otherwise.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID := args[0]

			format, err := a.outputFormat()
			if err != nil {
				return err
			}

			if !force {
				fmt.Fprintf(cmd.ErrOrStderr(), "Really delete post '%s'? (y/N): ", postID)
				var response string
				_, _ = fmt.Fscanln(cmd.InOrStdin(), &response)
				if !strings.EqualFold(response, "y") {
					return ErrCancelled
				}
			}

			return a.run(cmd, func(ctx context.Context, c *mattermost.Client) error {
				resp, err := c.DeletePost(ctx, postID)
				if err != nil {
					return fmt.Errorf("delete post %s: %w", postID, err)
				}

				switch format {
				case OutputFormatJSON:
					return jsonEncoder(cmd.OutOrStdout()).Encode(resp)
				case OutputFormatYAML:
					return writeYAML(cmd.OutOrStdout(), resp)
				default:
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted post %s\n", postID)
					return err
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "delete without confirmation")

	return cmd
}

func (a *app) newLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link POST_ID",
		Short: "Print the permalink of a post",
		Long:  "Print the web app permalink of a post. Uses --domain and --team-slug; no request is made.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := a.v.GetString("domain")
			if domain == "" {
				return ErrDomainRequired
			}

			link := mattermost.Permalink(domain, a.v.GetString("team_slug"), args[0], a.v.GetBool("insecure"))
			_, err := fmt.Fprintln(cmd.OutOrStdout(), link)
			return err
		},
	}
}
