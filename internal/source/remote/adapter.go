// Package remote implements the URL-list meme source: an explicit set of
// direct image links supplied by the caller, typically through the
// remote-fetch API trigger.
package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/memedex/internal/source"
)

const SourceKind = "remote"

// Adapter implements source.Source over a fixed URL list.
type Adapter struct {
	urls []string
}

// NewAdapter creates an adapter over the given URLs. Blank and non-http(s)
// entries are dropped up front so the pipeline only sees fetchable items.
func NewAdapter(urls []string) *Adapter {
	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		valid = append(valid, u)
	}
	return &Adapter{urls: valid}
}

// Kind returns the source kind label.
func (a *Adapter) Kind() string {
	return SourceKind
}

// Name returns a display identifier for this URL batch.
func (a *Adapter) Name() string {
	return fmt.Sprintf("%s:%d-urls", SourceKind, len(a.urls))
}

// Len returns the number of valid URLs in the batch.
func (a *Adapter) Len() int {
	return len(a.urls)
}

// FetchBatch pages through the URL list. The cursor is the next list index.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
	}
	if start >= len(a.urls) {
		return nil, "", nil
	}

	end := len(a.urls)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	items := make([]source.Item, 0, end-start)
	for _, u := range a.urls[start:end] {
		items = append(items, source.Item{
			SourceRef: u,
			URL:       u,
			Format:    source.FormatFromURL(u),
		})
	}

	nextCursor := ""
	if end < len(a.urls) {
		nextCursor = strconv.Itoa(end)
	}
	return items, nextCursor, nil
}
