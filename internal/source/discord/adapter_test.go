package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timmy/memedex/internal/source"
)

func TestParseChannelURL(t *testing.T) {
	testCases := []struct {
		name       string
		url        string
		wantServer string
		wantChan   string
		wantThread string
		wantOK     bool
	}{
		{
			name:       "channel url",
			url:        "https://discord.com/channels/111222333/444555666",
			wantServer: "111222333",
			wantChan:   "444555666",
			wantOK:     true,
		},
		{
			name:       "thread url",
			url:        "https://discord.com/channels/111222333/444555666/threads/777888999",
			wantServer: "111222333",
			wantChan:   "444555666",
			wantThread: "777888999",
			wantOK:     true,
		},
		{
			name:   "not a discord url",
			url:    "https://example.com/channels/1/2",
			wantOK: false,
		},
		{
			name:   "missing channel id",
			url:    "https://discord.com/channels/111222333",
			wantOK: false,
		},
		{
			name:   "non-numeric ids",
			url:    "https://discord.com/channels/abc/def",
			wantOK: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			serverID, channelID, threadID, ok := ParseChannelURL(tc.url)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			require.Equal(t, tc.wantServer, serverID)
			require.Equal(t, tc.wantChan, channelID)
			require.Equal(t, tc.wantThread, threadID)
		})
	}
}

func TestNewAdapterRejectsBadURL(t *testing.T) {
	_, err := NewAdapter(&Config{BotToken: "t"}, "https://example.com/nope")
	require.Error(t, err)
}

func TestNewAdapterThreadOverridesChannel(t *testing.T) {
	adapter, err := NewAdapter(&Config{BotToken: "t"}, "https://discord.com/channels/1/2/threads/3")
	require.NoError(t, err)
	require.Equal(t, "discord:3", adapter.Name())
}

// fakeDiscord serves canned message pages keyed by the before cursor.
func fakeDiscord(t *testing.T, pages map[string][]discordMessage, wantToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bot "+wantToken, r.Header.Get("Authorization"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))

		page, ok := pages[r.URL.Query().Get("before")]
		if !ok {
			page = nil
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchBatchFiltersImageAttachments(t *testing.T) {
	pages := map[string][]discordMessage{
		"": {
			{
				ID: "900",
				Attachments: []discordAttachment{
					{ID: "1", Filename: "meme.png", URL: "https://cdn.test/meme.png", ContentType: "image/png"},
					{ID: "2", Filename: "notes.txt", URL: "https://cdn.test/notes.txt", ContentType: "text/plain"},
				},
			},
			{ID: "800"}, // no attachments
			{
				ID: "700",
				Attachments: []discordAttachment{
					{ID: "3", Filename: "funny", URL: "https://cdn.test/funny", ContentType: "image/jpeg"},
				},
			},
		},
	}
	srv := fakeDiscord(t, pages, "token-1")

	adapter, err := NewAdapter(&Config{BotToken: "token-1", APIBase: srv.URL}, "https://discord.com/channels/10/20")
	require.NoError(t, err)

	items, nextCursor, err := adapter.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	// Short page means the history is exhausted
	require.Empty(t, nextCursor)
	require.Len(t, items, 2)

	require.Equal(t, "20/900", items[0].SourceRef)
	require.Equal(t, "https://cdn.test/meme.png", items[0].URL)
	require.Equal(t, "png", items[0].Format)

	require.Equal(t, "20/700", items[1].SourceRef)
	require.Equal(t, "jpg", items[1].Format)
}

func TestFetchBatchPaginatesBackward(t *testing.T) {
	// A full first page keeps the cursor alive; the cursor is the last
	// message ID of the page.
	firstPage := make([]discordMessage, pageSize)
	for i := range firstPage {
		firstPage[i] = discordMessage{ID: fmt.Sprintf("%d", 1000-i)}
	}
	firstPage[0].Attachments = []discordAttachment{
		{ID: "a", Filename: "top.png", URL: "https://cdn.test/top.png", ContentType: "image/png"},
	}

	pages := map[string][]discordMessage{
		"": firstPage,
		firstPage[pageSize-1].ID: {
			{
				ID: "500",
				Attachments: []discordAttachment{
					{ID: "b", Filename: "old.gif", URL: "https://cdn.test/old.gif", ContentType: "image/gif"},
				},
			},
		},
	}
	srv := fakeDiscord(t, pages, "tk")

	adapter, err := NewAdapter(&Config{BotToken: "tk", APIBase: srv.URL}, "https://discord.com/channels/10/20")
	require.NoError(t, err)

	items, cursor, err := adapter.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Equal(t, firstPage[pageSize-1].ID, cursor)
	require.Len(t, items, 1)

	items, cursor, err = adapter.FetchBatch(context.Background(), cursor, 0)
	require.NoError(t, err)
	require.Empty(t, cursor)
	require.Len(t, items, 1)
	require.Equal(t, "gif", items[0].Format)
}

func TestFetchBatchLookbackCap(t *testing.T) {
	fullPage := make([]discordMessage, pageSize)
	for i := range fullPage {
		fullPage[i] = discordMessage{ID: fmt.Sprintf("%d", 5000-i)}
	}
	pages := map[string][]discordMessage{"": fullPage}
	srv := fakeDiscord(t, pages, "tk")

	adapter, err := NewAdapter(&Config{BotToken: "tk", APIBase: srv.URL, MaxMessages: pageSize}, "https://discord.com/channels/10/20")
	require.NoError(t, err)

	// The cap lands exactly on the page boundary, so pagination stops even
	// though the page was full.
	_, cursor, err := adapter.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, cursor)

	// Subsequent calls short-circuit without hitting the API
	items, cursor, err := adapter.FetchBatch(context.Background(), "anything", 0)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Empty(t, cursor)
}

func TestFetchBatchLookbackCapResetsPerTraversal(t *testing.T) {
	fullPage := make([]discordMessage, pageSize)
	for i := range fullPage {
		fullPage[i] = discordMessage{ID: fmt.Sprintf("%d", 5000-i)}
	}
	fullPage[0].Attachments = []discordAttachment{
		{ID: "a", Filename: "new.png", URL: "https://cdn.test/new.png", ContentType: "image/png"},
	}
	pages := map[string][]discordMessage{"": fullPage}
	srv := fakeDiscord(t, pages, "tk")

	// One adapter serves every scheduled run, so the budget must come back
	// when a fresh traversal starts from an empty cursor.
	adapter, err := NewAdapter(&Config{BotToken: "tk", APIBase: srv.URL, MaxMessages: pageSize}, "https://discord.com/channels/10/20")
	require.NoError(t, err)

	items, cursor, err := adapter.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, cursor)
	require.Len(t, items, 1)

	items, cursor, err = adapter.FetchBatch(context.Background(), "", 0)
	require.NoError(t, err)
	require.Empty(t, cursor)
	require.Len(t, items, 1, "a later run should rediscover messages within the lookback window")
}

func TestFetchBatchAccessErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(&Config{BotToken: "bad", APIBase: srv.URL}, "https://discord.com/channels/10/20")
	require.NoError(t, err)

	_, _, err = adapter.FetchBatch(context.Background(), "", 0)
	require.ErrorIs(t, err, source.ErrSourceAccess)
}
