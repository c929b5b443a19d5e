package pagination

import "errors"

var (
	// ErrMissingItem is returned when an ordered response lists an id that
	// its collection does not contain.
	ErrMissingItem = errors.New("ordered response: id missing from collection")

	// ErrMalformedResponse is returned when an ordered response does not
	// have the expected shape.
	ErrMalformedResponse = errors.New("ordered response: malformed")
)
