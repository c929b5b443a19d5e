// Package pagination turns Mattermost's paginated collections into lazy
// sequences.
//
// Two schemes are supported:
//
//   - page-number pagination (/teams, /channels, /users, ...): the server
//     returns a bare JSON array per page and an empty array past the end
//   - cursor pagination (/channels/{id}/posts): the server returns an
//     ordered response {"order": [...], "posts": {id: post}} and the next
//     page is requested with before=<id of the last post seen>
//
// Both are exposed as iter.Seq2[Entity, error]. A page is requested only
// once the consumer has pulled every item of the previous one, and
// breaking out of a range loop stops further requests:
//
//	for post, err := range pagination.Posts(ctx, session, channelID, 0, "") {
//		if err != nil {
//			return err
//		}
//		fmt.Println(post.ID())
//	}
//
// Errors from the session are yielded exactly as returned. Nothing here
// retries; retries belong to the session.
//
// BatchFetcher drains the posts of many channels in parallel with a
// bounded worker pool.
package pagination
