package client

import "strings"

// idLength is the length of a Mattermost object id.
const idLength = 26

// endpointLabel collapses object ids in an API path so metric labels stay
// bounded, e.g. /api/v4/channels/<id>/posts -> /api/v4/channels/{id}/posts.
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isObjectID(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isObjectID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
