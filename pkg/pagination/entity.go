package pagination

import (
	"context"
	"net/url"
)

// Entity is an opaque Mattermost JSON object (team, channel, user, post ...).
type Entity map[string]any

// ID returns the entity's "id" field, or "" when it has none.
func (e Entity) ID() string {
	id, _ := e["id"].(string)
	return id
}

// Item is one element of an ordered response.
type Item struct {
	ID     string
	Entity Entity
}

// Getter performs a GET against the API and decodes the JSON body into v.
// *client.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, endpoint string, query url.Values, v any) error
}
