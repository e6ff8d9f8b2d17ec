package source

import (
	"context"
	"errors"
)

// ErrSourceAccess indicates the source itself is unreachable or unauthorized.
// It aborts the fetch for that source only; sibling sources keep running.
var ErrSourceAccess = errors.New("source access failed")

// Item represents one candidate image discovered in a source. Bytes are not
// fetched yet; the pipeline downloads lazily so a scan of a large channel
// does not hold every image in memory.
type Item struct {
	// SourceRef is the provenance string persisted with the record:
	// "channel/message" for discord, the literal URL for remote items.
	SourceRef string
	// URL is the direct download location for the image bytes.
	URL string
	// Filename is the attachment or derived file name.
	Filename string
	// Format is the image format extension (jpg, png, gif, webp).
	Format string
}

// Source defines a paginated provider of candidate meme images.
type Source interface {
	// Kind returns the source kind label (discord, remote).
	Kind() string

	// Name returns a human-readable identifier for this source instance.
	Name() string

	// FetchBatch returns the next page of items starting from cursor.
	// An empty nextCursor means the source is exhausted. A returned error
	// wrapping ErrSourceAccess aborts this source's fetch.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}
