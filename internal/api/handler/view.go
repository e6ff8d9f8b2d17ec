package handler

import (
	"time"

	"github.com/timmy/memedex/internal/domain"
	"github.com/timmy/memedex/internal/storage"
)

// MemeView is the API representation of a meme record. It mirrors the stored
// record but replaces the internal storage key with a resolvable URL.
type MemeView struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	SourceKind  string    `json:"source_kind"`
	SourceRef   string    `json:"source_ref,omitempty"`
	Format      string    `json:"format"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status"`
	RetryCount  int       `json:"retry_count"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TextContent string    `json:"text_content"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListResponse is the paginated list envelope shared by search and list
// endpoints.
type ListResponse struct {
	Results []MemeView `json:"results"`
	Total   int64      `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
}

func toView(record *domain.MemeRecord, store storage.ContentStore) MemeView {
	tags := record.Tags
	if tags == nil {
		tags = domain.StringArray{}
	}
	return MemeView{
		ID:          record.ID,
		URL:         store.GetURL(record.FilePath),
		SourceKind:  record.SourceKind,
		SourceRef:   record.SourceRef,
		Format:      record.Format,
		Width:       record.Width,
		Height:      record.Height,
		FileSize:    record.FileSize,
		Status:      string(record.Status),
		RetryCount:  record.RetryCount,
		Title:       record.Title,
		Description: record.Description,
		TextContent: record.TextContent,
		Tags:        tags,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func toViews(records []domain.MemeRecord, store storage.ContentStore) []MemeView {
	views := make([]MemeView, 0, len(records))
	for i := range records {
		views = append(views, toView(&records[i], store))
	}
	return views
}
