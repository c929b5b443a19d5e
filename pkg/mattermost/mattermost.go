// Package mattermost exposes the Mattermost REST API v4 endpoints used to
// inventory and clean up a server: teams, channels, users, bots, emoji,
// posts, files and usage counters.
//
// Collections are returned as lazy iterators (see package pagination);
// one-shot calls return decoded JSON. Minimum server versions are noted on
// each method and are not checked at runtime.
package mattermost

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/mattermost-client/pkg/client"
	"github.com/Sternrassler/mattermost-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
)

// ErrNoTeam is returned by team-scoped calls when no team id is configured.
var ErrNoTeam = errors.New("team id is required for this call")

// DefaultFileExtensions are searched by AllFiles. The search API has no way
// to list every file at once, so files are found by extension.
var DefaultFileExtensions = []string{
	"pdf", "zip", "7z", "gz", "bz2", "tar", "gzip", "jpeg", "jpg", "tiff", "gif", "png", "docx", "doc",
	"xls", "xlsx", "webp", "webm", "mp4", "mp3", "avi", "txt", "json", "jsons", "csv", "tsv",
}

// Config holds the connection settings for one Mattermost server.
type Config struct {
	// Domain is the server host, optionally with a port ("chat.example.com").
	Domain string

	// Token is a personal access token or bot token.
	Token string

	// TeamID scopes the file search calls.
	TeamID string

	// TeamSlug is used to build permalinks.
	TeamSlug string

	// Insecure talks plain HTTP instead of HTTPS.
	Insecure bool

	// Redis enables response caching and shared rate limit state. Optional.
	Redis *redis.Client

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// MaxRetries after the first attempt for server, rate limit and network errors.
	MaxRetries int

	// Timeout per HTTP request.
	Timeout time.Duration

	// HTTPClient overrides the underlying transport. Optional.
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration with the session defaults.
func DefaultConfig(domain, token string) Config {
	defaults := client.DefaultConfig("", token)
	return Config{
		Domain:     domain,
		Token:      token,
		UserAgent:  defaults.UserAgent,
		MaxRetries: defaults.MaxRetries,
		Timeout:    defaults.Timeout,
	}
}

// Client is a Mattermost API client.
type Client struct {
	session *client.Client
	config  Config
}

// New creates a client for the server in cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	if strings.Contains(cfg.Domain, "/") {
		return nil, fmt.Errorf("domain must be a host name, not a URL (got %q)", cfg.Domain)
	}

	scheme := "https"
	if cfg.Insecure {
		scheme = "http"
	}

	sessionCfg := client.DefaultConfig(scheme+"://"+cfg.Domain+"/api/v4", cfg.Token)
	sessionCfg.Redis = cfg.Redis
	sessionCfg.HTTPClient = cfg.HTTPClient
	sessionCfg.MaxRetries = cfg.MaxRetries
	if cfg.UserAgent != "" {
		sessionCfg.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		sessionCfg.Timeout = cfg.Timeout
	}

	session, err := client.New(sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Client{
		session: session,
		config:  cfg,
	}, nil
}

// Session returns the underlying HTTP session.
func (c *Client) Session() *client.Client {
	return c.session
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.session.Close()
}

// PostLink returns the permalink of a post in the web app.
func (c *Client) PostLink(postID string) string {
	return Permalink(c.config.Domain, c.config.TeamSlug, postID, c.config.Insecure)
}

// Permalink builds a post permalink without a client.
func Permalink(domain, teamSlug, postID string, insecure bool) string {
	scheme := "https"
	if insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s/pl/%s", scheme, domain, teamSlug, postID)
}

// Pages iterates any page-number paginated collection of the API.
func (c *Client) Pages(ctx context.Context, endpoint string, params url.Values, startPage int) iter.Seq2[pagination.Entity, error] {
	return pagination.Pages(ctx, c.session, endpoint, params, startPage)
}

// Teams iterates every team visible to the token.
func (c *Client) Teams(ctx context.Context) iter.Seq2[pagination.Entity, error] {
	return c.Pages(ctx, "/teams", nil, 0)
}

// ChannelsOptions filters Channels.
type ChannelsOptions struct {
	IncludeDeleted bool
}

// Channels iterates every channel on the server. Requires the
// manage_system permission.
//
// Minimum server version: 5.26
func (c *Client) Channels(ctx context.Context, opts ChannelsOptions) iter.Seq2[pagination.Entity, error] {
	params := url.Values{}
	if opts.IncludeDeleted {
		params.Set("include_deleted", "true")
	}
	return c.Pages(ctx, "/channels", params, 0)
}

// TotalChannelsCount returns the number of channels on the server.
//
// Minimum server version: 5.26
func (c *Client) TotalChannelsCount(ctx context.Context) (int64, error) {
	query := url.Values{}
	query.Set("per_page", "1")
	query.Set("include_total_count", "true")

	var resp struct {
		TotalCount int64 `json:"total_count"`
	}
	if err := c.session.GetJSON(ctx, "/channels", query, &resp); err != nil {
		return 0, err
	}
	return resp.TotalCount, nil
}

// Users iterates every user on the server.
func (c *Client) Users(ctx context.Context) iter.Seq2[pagination.Entity, error] {
	return c.Pages(ctx, "/users", nil, 0)
}

// Bots iterates every bot account.
//
// Minimum server version: 5.10
func (c *Client) Bots(ctx context.Context) iter.Seq2[pagination.Entity, error] {
	return c.Pages(ctx, "/bots", nil, 0)
}

// Emoji iterates every custom emoji.
//
// Minimum server version: 4.7
func (c *Client) Emoji(ctx context.Context) iter.Seq2[pagination.Entity, error] {
	return c.Pages(ctx, "/emoji", nil, 0)
}

// ChannelPosts iterates the posts of a channel from newest to oldest.
// perPage <= 0 uses pagination.DefaultPerPage; before == "" starts at the
// newest post.
func (c *Client) ChannelPosts(ctx context.Context, channelID string, perPage int, before string) iter.Seq2[pagination.Entity, error] {
	return pagination.Posts(ctx, c.session, channelID, perPage, before)
}

// ChannelsPosts drains several channels in parallel.
func (c *Client) ChannelsPosts(ctx context.Context, channelIDs []string, cfg pagination.Config) (map[string][]pagination.Entity, error) {
	return pagination.NewBatchFetcher(c.session, cfg).FetchChannels(ctx, channelIDs)
}

type fileSearch struct {
	Terms      string `json:"terms"`
	IsOrSearch bool   `json:"is_or_search"`
}

// SearchFiles runs a file search in the configured team and returns the
// raw ordered response ({"order": [...], "file_infos": {...}}).
//
// Minimum server version: 5.34
func (c *Client) SearchFiles(ctx context.Context, terms string) (pagination.Entity, error) {
	if c.config.TeamID == "" {
		return nil, ErrNoTeam
	}

	endpoint := "/teams/" + url.PathEscape(c.config.TeamID) + "/files/search"
	var resp pagination.Entity
	if err := c.session.PostJSON(ctx, endpoint, fileSearch{Terms: terms}, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AllFiles iterates the files of the configured team by searching for
// each extension in turn. A nil extensions uses DefaultFileExtensions.
// A file whose name matches several searches is yielded once per match.
//
// Minimum server version: 5.34
func (c *Client) AllFiles(ctx context.Context, extensions []string) iter.Seq2[pagination.Entity, error] {
	if extensions == nil {
		extensions = DefaultFileExtensions
	}

	return func(yield func(pagination.Entity, error) bool) {
		for _, ext := range extensions {
			resp, err := c.SearchFiles(ctx, "ext:"+ext)
			if err != nil {
				yield(nil, err)
				return
			}

			items, err := pagination.OrderedItems(resp, "file_infos")
			if err != nil {
				yield(nil, err)
				return
			}

			for _, item := range items {
				if !yield(item.Entity, nil) {
					return
				}
			}
		}
	}
}

// PostsByIDs fetches a list of posts by id.
func (c *Client) PostsByIDs(ctx context.Context, ids []string) ([]pagination.Entity, error) {
	if ids == nil {
		ids = []string{}
	}

	var posts []pagination.Entity
	if err := c.session.PostJSON(ctx, "/posts/ids", ids, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// DeletePost soft deletes a post and returns the server's response. Any
// non-2xx status is returned as a *client.APIError.
func (c *Client) DeletePost(ctx context.Context, postID string) (pagination.Entity, error) {
	var resp pagination.Entity
	if err := c.session.DeleteJSON(ctx, "/posts/"+url.PathEscape(postID), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PostsUsage returns the approximate number of posts on the server.
//
// Minimum server version: 7.0
func (c *Client) PostsUsage(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.session.GetJSON(ctx, "/usage/posts", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// StorageUsage returns the file storage used by the server in bytes.
//
// Minimum server version: 7.1
func (c *Client) StorageUsage(ctx context.Context) (int64, error) {
	var resp struct {
		Bytes int64 `json:"bytes"`
	}
	if err := c.session.GetJSON(ctx, "/usage/storage", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Bytes, nil
}
