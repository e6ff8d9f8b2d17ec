package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AnalysisStatus represents the lifecycle state of a meme record.
// A record starts as pending, moves to success on a completed analysis,
// or cycles through failed_retryable until the retry ceiling promotes it
// to failed_permanent. Success and failed_permanent are terminal for the
// automatic pipeline; a manual reanalysis resets any state back to pending.
type AnalysisStatus string

const (
	StatusPending         AnalysisStatus = "pending"
	StatusSuccess         AnalysisStatus = "success"
	StatusFailedRetryable AnalysisStatus = "failed_retryable"
	StatusFailedPermanent AnalysisStatus = "failed_permanent"
)

// Terminal reports whether the automatic pipeline will never touch a record
// in this status again.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailedPermanent
}

// Valid reports whether s is one of the known statuses.
func (s AnalysisStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailedRetryable, StatusFailedPermanent:
		return true
	}
	return false
}

// StringArray is a custom type for storing string arrays as JSON in the database.
// Insertion order is preserved; tag order is meaningful for display.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// MemeRecord represents one distinct ingested image and its enrichment metadata.
// ContentHash carries a store-level unique constraint: it is the dedup key and
// must hold under concurrent fetch runs, so the database enforces it rather
// than application logic.
type MemeRecord struct {
	ID          string         `gorm:"type:text;primaryKey" json:"id"`
	ContentHash string         `gorm:"type:text;not null;uniqueIndex:idx_memes_content_hash" json:"content_hash"`
	SourceKind  string         `gorm:"type:text;not null;index:idx_memes_source_kind" json:"source_kind"`
	SourceRef   string         `gorm:"type:text" json:"source_ref"`
	FilePath    string         `gorm:"type:text;not null" json:"file_path"`
	Format      string         `gorm:"type:text" json:"format"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	FileSize    int64          `json:"file_size"`
	Status      AnalysisStatus `gorm:"type:text;index:idx_memes_status;default:pending" json:"status"`
	RetryCount  int            `gorm:"default:0" json:"retry_count"`
	Title       string         `gorm:"type:text" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	TextContent string         `gorm:"type:text" json:"text_content"`
	Tags        StringArray    `gorm:"type:text" json:"tags"`
	LastRetryAt *time.Time     `json:"last_retry_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName returns the database table name for MemeRecord.
func (MemeRecord) TableName() string {
	return "meme_records"
}

// Analysis holds the structured enrichment fields produced by the vision
// service for a single image.
type Analysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TextContent string   `json:"text_content"`
	Tags        []string `json:"tags"`
}

// StatusCounts aggregates record counts per lifecycle status.
type StatusCounts struct {
	Total           int64 `json:"total"`
	Pending         int64 `json:"pending"`
	Success         int64 `json:"success"`
	FailedRetryable int64 `json:"failed_retryable"`
	FailedPermanent int64 `json:"failed_permanent"`
}
