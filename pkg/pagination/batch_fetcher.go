package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of channels drained in parallel
	MaxConcurrency int
	// Timeout for draining a single channel
	Timeout time.Duration
	// PerPage is the page size of each posts request
	PerPage int
}

// DefaultConfig returns a configuration that stays well within the default
// Mattermost rate limit.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        5 * time.Minute,
		PerPage:        DefaultPerPage,
	}
}

// ChannelResult is the outcome of draining one channel.
type ChannelResult struct {
	ChannelID string
	Posts     []Entity
	Error     error
}

// BatchFetcher drains the posts of several channels in parallel.
type BatchFetcher struct {
	getter Getter
	config Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(getter Getter, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PerPage <= 0 {
		config.PerPage = defaults.PerPage
	}

	return &BatchFetcher{
		getter: getter,
		config: config,
	}
}

// FetchChannels drains every channel with one Posts iterator per channel.
//
// Returns map of channelID -> posts for the channels that completed. If any
// channel fails, the partial map is returned together with the first error.
func (bf *BatchFetcher) FetchChannels(ctx context.Context, channelIDs []string) (map[string][]Entity, error) {
	start := time.Now()
	results := make(map[string][]Entity, len(channelIDs))
	if len(channelIDs) == 0 {
		return results, nil
	}

	log.Info().
		Int("channels", len(channelIDs)).
		Int("workers", bf.config.MaxConcurrency).
		Msg("Starting parallel channel fetch")

	queue := make(chan string, len(channelIDs))
	for _, id := range channelIDs {
		queue <- id
	}
	close(queue)

	channelResults := make(chan ChannelResult, len(channelIDs))

	workers := min(bf.config.MaxConcurrency, len(channelIDs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, queue, channelResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(channelResults)
	}()

	var firstErr error
	failed := 0
	for result := range channelResults {
		if result.Error != nil {
			failed++
			log.Warn().
				Err(result.Error).
				Str("channel_id", result.ChannelID).
				Msg("Channel fetch failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("channel %s: %w", result.ChannelID, result.Error)
			}
			continue
		}
		results[result.ChannelID] = result.Posts
	}

	if firstErr == nil && ctx.Err() != nil && len(results) < len(channelIDs) {
		firstErr = ctx.Err()
	}

	if firstErr != nil {
		log.Warn().
			Int("fetched_channels", len(results)).
			Int("failed_channels", failed).
			Int("total_channels", len(channelIDs)).
			Msg("Returning partial results")
		return results, fmt.Errorf("partial data: %d/%d channels: %w", len(results), len(channelIDs), firstErr)
	}

	log.Info().
		Int("channels", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// worker drains channels from the queue
func (bf *BatchFetcher) worker(ctx context.Context, queue <-chan string, results chan<- ChannelResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for channelID := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("channels_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		posts, err := bf.drain(ctx, channelID)
		results <- ChannelResult{ChannelID: channelID, Posts: posts, Error: err}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("channels_processed", processed).
			Msg("Worker completed")
	}
}

func (bf *BatchFetcher) drain(ctx context.Context, channelID string) ([]Entity, error) {
	channelCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	var posts []Entity
	for post, err := range Posts(channelCtx, bf.getter, channelID, bf.config.PerPage, "") {
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}
