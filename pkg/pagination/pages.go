package pagination

import (
	"context"
	"iter"
	"net/url"
	"strconv"

	"github.com/Sternrassler/mattermost-client/pkg/logging"
)

// DefaultPerPage is the page size used for channel posts.
const DefaultPerPage = 100

// Pages iterates a page-number paginated collection.
//
// It requests endpoint with params plus page=startPage, yields every entity
// of the returned array, then moves to the next page. Iteration ends at the
// first empty page. There is no upper bound on the number of pages.
func Pages(ctx context.Context, getter Getter, endpoint string, params url.Values, startPage int) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		logger := logging.NewLogger(logging.ComponentPagination)

		for page := startPage; ; page++ {
			query := make(url.Values, len(params)+1)
			for k, v := range params {
				query[k] = append([]string(nil), v...)
			}
			query.Set("page", strconv.Itoa(page))

			var batch []Entity
			if err := getter.GetJSON(ctx, endpoint, query, &batch); err != nil {
				yield(nil, err)
				return
			}

			logger.Debug().
				Str("endpoint", endpoint).
				Int("page", page).
				Int("items", len(batch)).
				Msg("Fetched page")

			if len(batch) == 0 {
				return
			}

			for _, entity := range batch {
				if !yield(entity, nil) {
					return
				}
			}
		}
	}
}

// Posts iterates the posts of a channel from newest to oldest.
//
// Each page is requested with per_page and before; the id of the last post
// of a page becomes the cursor for the next one. Iteration ends when a page
// has no posts. perPage <= 0 selects DefaultPerPage and before == "" starts
// at the newest post.
func Posts(ctx context.Context, getter Getter, channelID string, perPage int, before string) iter.Seq2[Entity, error] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	endpoint := "/channels/" + url.PathEscape(channelID) + "/posts"

	return func(yield func(Entity, error) bool) {
		logger := logging.NewLogger(logging.ComponentPagination)
		cursor := before

		for {
			query := url.Values{}
			query.Set("per_page", strconv.Itoa(perPage))
			query.Set("before", cursor)

			var resp Entity
			if err := getter.GetJSON(ctx, endpoint, query, &resp); err != nil {
				yield(nil, err)
				return
			}

			items, err := OrderedItems(resp, "posts")
			if err != nil {
				yield(nil, err)
				return
			}

			logger.Debug().
				Str("channel_id", channelID).
				Str("before", cursor).
				Int("items", len(items)).
				Msg("Fetched posts page")

			if len(items) == 0 {
				return
			}

			for _, item := range items {
				if !yield(item.Entity, nil) {
					return
				}
			}

			next := items[len(items)-1].ID
			if next == cursor {
				logger.Warn().
					Str("channel_id", channelID).
					Str("before", cursor).
					Msg("Posts cursor did not advance")
			}
			cursor = next
		}
	}
}
