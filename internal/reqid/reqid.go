package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header a caller may use to supply its own request ID.
const Header = "X-Request-ID"

// maxLen bounds caller supplied IDs.
const maxLen = 128

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent carrying a request ID. A usable
// incoming ID (from the X-Request-ID header) is kept, otherwise a random UUID
// is generated. It also returns the ID that was stored.
func NewContext(parent context.Context, incoming string) (context.Context, string) {
	id := incoming
	if !valid(id) {
		id = uuid.NewString()
	}
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}

func valid(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
