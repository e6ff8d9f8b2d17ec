package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAnalysis(t *testing.T) {
	testCases := []struct {
		name      string
		content   string
		wantErr   bool
		wantKind  Kind
		wantTitle string
	}{
		{
			name:      "plain json",
			content:   `{"title":"Surprised cat","description":"A cat looks shocked","text_content":"","tags":["cat","shock"]}`,
			wantTitle: "Surprised cat",
		},
		{
			name:      "json wrapped in fences",
			content:   "```json\n{\"title\":\"Fenced\",\"description\":\"desc\",\"tags\":[\"a\"]}\n```",
			wantTitle: "Fenced",
		},
		{
			name:      "bare fences",
			content:   "```\n{\"title\":\"Bare\",\"description\":\"desc\",\"tags\":[\"a\"]}\n```",
			wantTitle: "Bare",
		},
		{
			name:     "not json",
			content:  "here is your analysis!",
			wantErr:  true,
			wantKind: KindInvalidResponse,
		},
		{
			name:     "missing title",
			content:  `{"title":"  ","description":"desc","tags":["a"]}`,
			wantErr:  true,
			wantKind: KindInvalidResponse,
		},
		{
			name:     "missing description",
			content:  `{"title":"t","description":"","tags":["a"]}`,
			wantErr:  true,
			wantKind: KindInvalidResponse,
		},
		{
			name:     "empty tags",
			content:  `{"title":"t","description":"desc","tags":[]}`,
			wantErr:  true,
			wantKind: KindInvalidResponse,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := parseAnalysis(tc.content)
			if tc.wantErr {
				require.Error(t, err)
				require.Equal(t, tc.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantTitle, analysis.Title)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	require.Equal(t, KindTransient, classifyStatus(http.StatusTooManyRequests))
	require.Equal(t, KindTransient, classifyStatus(http.StatusRequestTimeout))
	require.Equal(t, KindTransient, classifyStatus(http.StatusInternalServerError))
	require.Equal(t, KindTransient, classifyStatus(http.StatusBadGateway))
	require.Equal(t, KindRejected, classifyStatus(http.StatusBadRequest))
	require.Equal(t, KindRejected, classifyStatus(http.StatusUnauthorized))
	require.Equal(t, KindRejected, classifyStatus(http.StatusRequestEntityTooLarge))
}

func TestStripCodeFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
	require.Equal(t, "", stripCodeFences("```json\n```"))
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"content": `{"title":"Drake meme","description":"Drake approves","text_content":"no / yes","tags":["drake","approval"]}`,
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(&Config{Model: "vision-model", APIKey: "test-key", BaseURL: server.URL})

	analysis, err := client.Analyze(context.Background(), []byte{0x89, 0x50}, "png")
	require.NoError(t, err)
	require.Equal(t, "Drake meme", analysis.Title)
	require.Equal(t, []string{"drake", "approval"}, analysis.Tags)
	require.Equal(t, "vision-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	require.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestAnalyzeErrorKinds(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{
			name:     "rate limited is transient",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"rate limit","type":"rate_limit"}}`,
			wantKind: KindTransient,
		},
		{
			name:     "server error is transient",
			status:   http.StatusServiceUnavailable,
			body:     `{}`,
			wantKind: KindTransient,
		},
		{
			name:     "bad request is rejected",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"image too large","type":"invalid_request_error"}}`,
			wantKind: KindRejected,
		},
		{
			name:     "no choices is invalid response",
			status:   http.StatusOK,
			body:     `{"choices":[]}`,
			wantKind: KindInvalidResponse,
		},
		{
			name:     "garbage content is invalid response",
			status:   http.StatusOK,
			body:     `{"choices":[{"message":{"content":"not json at all"}}]}`,
			wantKind: KindInvalidResponse,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient(&Config{Model: "m", APIKey: "k", BaseURL: server.URL})
			_, err := client.Analyze(context.Background(), []byte("img"), "jpg")
			require.Error(t, err)
			require.Equal(t, tc.wantKind, KindOf(err))
		})
	}
}

func TestMIMEType(t *testing.T) {
	require.Equal(t, "image/jpeg", MIMEType("jpg"))
	require.Equal(t, "image/jpeg", MIMEType("JPEG"))
	require.Equal(t, "image/png", MIMEType("png"))
	require.Equal(t, "image/gif", MIMEType("gif"))
	require.Equal(t, "image/webp", MIMEType("webp"))
	require.Equal(t, "application/octet-stream", MIMEType("bmp"))
}
