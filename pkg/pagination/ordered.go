package pagination

import "fmt"

// OrderedItems reshapes a response of the form
//
//	{"order": ["x", "y"], "<key>": {"y": {...}, "x": {...}}}
//
// into its items in the order listed by "order". The result always has
// len(order) elements; an id absent from the collection fails with
// ErrMissingItem.
func OrderedItems(resp Entity, key string) ([]Item, error) {
	rawOrder, ok := resp["order"]
	if !ok {
		return nil, fmt.Errorf("%w: no \"order\" field", ErrMalformedResponse)
	}

	var order []any
	if rawOrder != nil {
		order, ok = rawOrder.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: \"order\" is %T, not an array", ErrMalformedResponse, rawOrder)
		}
	}
	if len(order) == 0 {
		return []Item{}, nil
	}

	collection, ok := resp[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, not an object", ErrMalformedResponse, key, resp[key])
	}

	items := make([]Item, 0, len(order))
	for i, raw := range order {
		id, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: order[%d] is %T, not a string", ErrMalformedResponse, i, raw)
		}

		value, ok := collection[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q not in %q", ErrMissingItem, id, key)
		}

		entity, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%q] is %T, not an object", ErrMalformedResponse, key, id, value)
		}

		items = append(items, Item{ID: id, Entity: Entity(entity)})
	}

	return items, nil
}
