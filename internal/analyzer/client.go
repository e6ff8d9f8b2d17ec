// Package analyzer implements the vision-service client that enriches meme
// images with structured metadata. The response contract is strict: anything
// that does not parse into the expected JSON shape is an analysis failure,
// never a partial write.
package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/memedex/internal/domain"
	"github.com/timmy/memedex/internal/prompts"
)

// Client submits images to an OpenAI-compatible vision endpoint.
type Client struct {
	client   *resty.Client
	model    string
	endpoint string
}

// Config holds configuration for the analyzer client.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a new analyzer client.
// Parameters:
//   - cfg: client configuration including model, API key, and timeout.
// Returns:
//   - *Client: initialized vision-service client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Client{
		client:   client,
		model:    cfg.Model,
		endpoint: strings.TrimSuffix(baseURL, "/") + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (c *Client) GetModel() string {
	return c.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Analyze submits image bytes with the fixed instruction prompt and parses
// the structured result. A timeout, a non-2xx status, or an unparseable body
// all return an *Error carrying the taxonomy kind.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageData: raw image bytes.
//   - format: image format extension (jpg, png, gif, webp).
// Returns:
//   - *domain.Analysis: validated enrichment fields.
//   - error: *Error on any failure.
func (c *Client) Analyze(ctx context.Context, imageData []byte, format string) (*domain.Analysis, error) {
	mimeType := MIMEType(format)
	base64Image := base64.StdEncoding.EncodeToString(imageData)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64Image)

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: prompts.AnalysisSystemPrompt,
			},
			{
				Role: "user",
				Content: []interface{}{
					textContent{
						Type: "text",
						Text: prompts.AnalysisUserPrompt,
					},
					imageContent{
						Type: "image_url",
						ImageURL: imageURL{
							URL:    dataURL,
							Detail: "auto",
						},
					},
				},
			},
		},
		MaxTokens: 500,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, newError(KindTransient, "failed to call vision API: %w", err)
	}

	if code := httpResp.StatusCode(); code < 200 || code >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", code)
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", code, resp.Error.Message)
		}
		return nil, newError(classifyStatus(code), "vision API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return nil, newError(KindInvalidResponse, "vision API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(KindInvalidResponse, "no choices in vision API response")
	}

	return parseAnalysis(resp.Choices[0].Message.Content)
}

// classifyStatus maps an HTTP status code to a failure kind. Quota and
// server-side errors are transient; other client errors mean the request
// itself was rejected.
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return KindTransient
	case code >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// parseAnalysis strictly parses the model output into an Analysis. Models
// often wrap JSON in markdown fences despite instructions, so fences are
// stripped before parsing.
func parseAnalysis(content string) (*domain.Analysis, error) {
	content = stripCodeFences(content)

	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, newError(KindInvalidResponse, "response is not valid JSON: %w", err)
	}

	if strings.TrimSpace(analysis.Title) == "" {
		return nil, newError(KindInvalidResponse, "response missing title")
	}
	if strings.TrimSpace(analysis.Description) == "" {
		return nil, newError(KindInvalidResponse, "response missing description")
	}
	if len(analysis.Tags) == 0 {
		return nil, newError(KindInvalidResponse, "response missing tags")
	}

	return &analysis, nil
}

// stripCodeFences removes a surrounding markdown code fence, if any.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	} else if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// MIMEType maps a format extension to its MIME type.
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
