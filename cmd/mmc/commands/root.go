// Package commands implements the mmc command line interface.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Sternrassler/mattermost-client/pkg/logging"
	"github.com/Sternrassler/mattermost-client/pkg/mattermost"
	"github.com/Sternrassler/mattermost-client/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// ErrDomainRequired is returned when no server is configured.
var ErrDomainRequired = errors.New("domain is required (set --domain, MMC_DOMAIN or domain in the config file)")

// ErrTokenRequired is returned when no token is configured and none can be prompted for.
var ErrTokenRequired = errors.New("token is required (set --token, MMC_TOKEN or token in the config file)")

// app carries the configuration shared by every command.
type app struct {
	v *viper.Viper

	// rdb is the Redis client opened for --redis-url, closed by run.
	rdb *redis.Client
}

// flagKeys maps configuration keys to the persistent flags that set them.
var flagKeys = map[string]string{
	"config":       "config",
	"domain":       "domain",
	"token":        "token",
	"team_id":      "team-id",
	"team_slug":    "team-slug",
	"insecure":     "insecure",
	"redis_url":    "redis-url",
	"max_retries":  "max-retries",
	"output":       "output",
	"log_level":    "log-level",
	"metrics_addr": "metrics-addr",
}

// NewRootCommand creates the mmc root command with every subcommand.
func NewRootCommand(version string) *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "mmc",
		Short: "Mattermost REST API client",
		Long: `A command-line client for the Mattermost REST API v4.

Lists teams, channels, users, bots, emoji, posts and files, exports
channel history, deletes posts and reads usage counters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.mmc/config.yml)")
	flags.StringP("domain", "d", "", "server host, e.g. chat.example.com")
	flags.StringP("token", "t", "", "personal access token")
	flags.String("team-id", "", "team id used by file search")
	flags.String("team-slug", "", "team name used in permalinks")
	flags.Bool("insecure", false, "use http instead of https")
	flags.String("redis-url", "", "redis URL for response caching and shared rate limits")
	flags.Int("max-retries", 2, "retries for server, rate limit and network errors")
	flags.StringP("output", "o", OutputFormatTable, "output format (table, json, yaml)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	for key, name := range flagKeys {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	cmd.AddCommand(newVersionCommand(version))
	cmd.AddCommand(a.newTeamsCommand())
	cmd.AddCommand(a.newChannelsCommand())
	cmd.AddCommand(a.newUsersCommand())
	cmd.AddCommand(a.newBotsCommand())
	cmd.AddCommand(a.newEmojiCommand())
	cmd.AddCommand(a.newPostsCommand())
	cmd.AddCommand(a.newExportCommand())
	cmd.AddCommand(a.newFilesCommand())
	cmd.AddCommand(a.newGetPostsCommand())
	cmd.AddCommand(a.newDeletePostCommand())
	cmd.AddCommand(a.newUsageCommand())
	cmd.AddCommand(a.newLinkCommand())

	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".mmc"))
		a.v.SetConfigType("yml")
		a.v.SetConfigName("config")
	}

	a.v.SetEnvPrefix("MMC")
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level, err := logging.ParseLevel(a.v.GetString("log_level"))
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	logging.Setup(logging.Config{
		Level:  level,
		Pretty: isTerminal(stderr),
		Output: stderr,
	})

	_, err = a.outputFormat()
	return err
}

// client builds a Mattermost client from the merged flag, env and file configuration.
func (a *app) client(cmd *cobra.Command) (*mattermost.Client, error) {
	domain := a.v.GetString("domain")
	if domain == "" {
		return nil, ErrDomainRequired
	}

	token := a.v.GetString("token")
	if token == "" {
		var err error
		if token, err = promptToken(cmd); err != nil {
			return nil, err
		}
	}

	cfg := mattermost.DefaultConfig(domain, token)
	cfg.TeamID = a.v.GetString("team_id")
	cfg.TeamSlug = a.v.GetString("team_slug")
	cfg.Insecure = a.v.GetBool("insecure")
	cfg.MaxRetries = a.v.GetInt("max_retries")

	if redisURL := a.v.GetString("redis_url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		cfg.Redis = a.rdb
	}

	return mattermost.New(cfg)
}

// run executes fn with a client, serving metrics alongside it when
// --metrics-addr is set.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c *mattermost.Client) error) error {
	defer a.closeRedis()

	c, err := a.client(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	addr := a.v.GetString("metrics_addr")
	if addr == "" {
		return fn(cmd.Context(), c)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, addr)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx, c)
	})

	return g.Wait()
}

func (a *app) closeRedis() {
	if a.rdb == nil {
		return
	}
	if err := a.rdb.Close(); err != nil {
		logging.NewLogger(logging.ComponentCLI).Debug().Err(err).Msg("Failed to close redis client")
	}
	a.rdb = nil
}

func promptToken(cmd *cobra.Command) (string, error) {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return "", ErrTokenRequired
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Access token: ")
	token, err := term.ReadPassword(int(stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if len(token) == 0 {
		return "", ErrTokenRequired
	}

	return string(token), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
