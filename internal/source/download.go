package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Downloader fetches image bytes over HTTP with a per-request timeout.
type Downloader struct {
	client *resty.Client
}

// NewDownloader creates a Downloader with the given timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	return &Downloader{client: client}
}

// Download fetches the bytes at url and returns them with the detected image
// format. The content-type header wins over the URL extension.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - url: direct image URL.
// Returns:
//   - []byte: raw image bytes.
//   - string: format extension (jpg, png, gif, webp).
//   - error: non-nil on network failure or non-2xx status.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, "", fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode())
	}

	format := FormatFromContentType(resp.Header().Get("Content-Type"))
	if format == "" {
		format = FormatFromURL(url)
	}
	if format == "" {
		format = "jpg"
	}
	return resp.Body(), format, nil
}

// FormatFromContentType maps an image content type to a format extension.
func FormatFromContentType(contentType string) string {
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return "jpg"
	}
	return ""
}

// FormatFromURL extracts a known image extension from a URL, ignoring any
// query string.
func FormatFromURL(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx != -1 {
		url = url[:idx]
	}
	idx := strings.LastIndex(url, ".")
	if idx == -1 {
		return ""
	}
	switch ext := strings.ToLower(url[idx+1:]); ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "gif", "webp":
		return ext
	}
	return ""
}
