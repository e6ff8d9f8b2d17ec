// Package discord implements the channel-style meme source backed by the
// Discord REST API. It paginates backward through a channel's (or thread's)
// message history and yields image attachments.
package discord

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/memedex/internal/source"
)

const SourceKind = "discord"

// pageSize is the Discord API maximum for one messages request.
const pageSize = 100

var channelURLPattern = regexp.MustCompile(`^https://discord\.com/channels/(\d+)/(\d+)(?:/threads/(\d+))?`)

// Config holds Discord API access configuration.
type Config struct {
	BotToken string
	APIBase  string
	// MaxMessages caps how far back pagination walks (0 = until exhausted).
	MaxMessages int
	Timeout     time.Duration
}

// Adapter implements source.Source for one Discord channel or thread.
type Adapter struct {
	client    *resty.Client
	apiBase   string
	channelID string
	threadID  string
	maxMsgs   int
	seen      int
}

// NewAdapter creates an adapter for the given discord channel URL.
// Parameters:
//   - cfg: Discord API configuration.
//   - channelURL: URL of the form https://discord.com/channels/<server>/<channel>[/threads/<thread>].
// Returns:
//   - *Adapter: configured adapter.
//   - error: non-nil if the URL does not parse.
func NewAdapter(cfg *Config, channelURL string) (*Adapter, error) {
	serverID, channelID, threadID, ok := ParseChannelURL(channelURL)
	if !ok || serverID == "" || channelID == "" {
		return nil, fmt.Errorf("invalid discord channel URL %q", channelURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Authorization", "Bot "+cfg.BotToken)

	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://discord.com/api/v10"
	}

	return &Adapter{
		client:    client,
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		channelID: channelID,
		threadID:  threadID,
		maxMsgs:   cfg.MaxMessages,
	}, nil
}

// ParseChannelURL extracts server, channel, and optional thread IDs from a
// discord channel URL.
func ParseChannelURL(url string) (serverID, channelID, threadID string, ok bool) {
	m := channelURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// Kind returns the source kind label.
func (a *Adapter) Kind() string {
	return SourceKind
}

// Name returns the channel (or thread) being fetched.
func (a *Adapter) Name() string {
	return SourceKind + ":" + a.messageChannelID()
}

// messageChannelID is the channel whose history is read; a thread overrides
// its parent channel.
func (a *Adapter) messageChannelID() string {
	if a.threadID != "" {
		return a.threadID
	}
	return a.channelID
}

type discordAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type discordMessage struct {
	ID          string              `json:"id"`
	Attachments []discordAttachment `json:"attachments"`
}

// FetchBatch reads one page of message history backward from cursor (a
// message ID) and returns the image attachments found. Pagination is
// page-driven: limit is advisory and a full Discord page is always consumed
// so the cursor never skips messages. The lookback cap is enforced per
// traversal: an empty cursor starts a new traversal and resets the budget,
// so periodic runs reusing one adapter each get the full lookback window.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if cursor == "" {
		a.seen = 0
	}
	if a.maxMsgs > 0 && a.seen >= a.maxMsgs {
		return nil, "", nil
	}

	channelID := a.messageChannelID()
	req := a.client.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", pageSize))
	if cursor != "" {
		req.SetQueryParam("before", cursor)
	}

	var messages []discordMessage
	resp, err := req.SetResult(&messages).Get(a.apiBase + "/channels/" + channelID + "/messages")
	if err != nil {
		return nil, "", fmt.Errorf("%w: discord channel %s: %v", source.ErrSourceAccess, channelID, err)
	}
	if resp.StatusCode() != 200 {
		return nil, "", fmt.Errorf("%w: discord channel %s: HTTP %d", source.ErrSourceAccess, channelID, resp.StatusCode())
	}
	if len(messages) == 0 {
		return nil, "", nil
	}

	a.seen += len(messages)

	var items []source.Item
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			if !strings.HasPrefix(att.ContentType, "image/") {
				continue
			}
			format := source.FormatFromContentType(att.ContentType)
			if format == "" {
				format = source.FormatFromURL(att.Filename)
			}
			items = append(items, source.Item{
				SourceRef: channelID + "/" + msg.ID,
				URL:       att.URL,
				Filename:  att.Filename,
				Format:    format,
			})
		}
	}

	nextCursor := messages[len(messages)-1].ID
	if len(messages) < pageSize {
		nextCursor = "" // history exhausted
	}
	if a.maxMsgs > 0 && a.seen >= a.maxMsgs {
		nextCursor = "" // lookback boundary reached
	}
	return items, nextCursor, nil
}
