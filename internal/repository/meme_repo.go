package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/memedex/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sentinel errors surfaced by the repository.
var (
	// ErrDuplicateContent indicates the record's content hash already exists.
	// It is an expected dedup outcome, not a failure.
	ErrDuplicateContent = errors.New("duplicate content hash")

	// ErrStatusConflict indicates a compare-and-swap status update found the
	// record in a different status than expected.
	ErrStatusConflict = errors.New("record status changed concurrently")
)

// MemeRepository handles meme record persistence.
type MemeRepository struct {
	db *gorm.DB
}

// NewMemeRepository creates a new MemeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MemeRepository: repository instance bound to db.
func NewMemeRepository(db *gorm.DB) *MemeRepository {
	return &MemeRepository{db: db}
}

// CreateIfAbsent inserts a new record unless one with the same content hash
// exists. The uniqueness check rides on the store's constraint: a conflicting
// insert affects zero rows and is reported as ErrDuplicateContent, so two
// concurrent ingests of the same bytes converge to exactly one row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: meme record to persist; status should be pending.
// Returns:
//   - error: ErrDuplicateContent when the hash exists, non-nil on real failures.
func (r *MemeRepository) CreateIfAbsent(ctx context.Context, record *domain.MemeRecord) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateContent
	}
	return nil
}

// ExistsByContentHash checks if a record with the given content hash exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - hash: hex digest of the image bytes.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *MemeRepository) ExistsByContentHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("content_hash = ?", hash).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByID retrieves a record by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - *domain.MemeRecord: record if found.
//   - error: gorm.ErrRecordNotFound if absent, other non-nil on failure.
func (r *MemeRepository) GetByID(ctx context.Context, id string) (*domain.MemeRecord, error) {
	var record domain.MemeRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByStatus retrieves records by status with pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status to filter by.
//   - limit: maximum number of records to return (0 = no limit).
//   - offset: number of records to skip.
// Returns:
//   - []domain.MemeRecord: matching records, oldest first.
//   - error: non-nil if the query fails.
func (r *MemeRepository) ListByStatus(ctx context.Context, status domain.AnalysisStatus, limit, offset int) ([]domain.MemeRecord, error) {
	var records []domain.MemeRecord
	query := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ClaimStatus atomically moves a record from one status to another.
// The update is compare-and-swap on status: if another run already moved the
// record, zero rows are affected and ErrStatusConflict is returned. This is
// how a run takes ownership of a record before analyzing it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - from: expected current status.
//   - to: status to set.
// Returns:
//   - error: ErrStatusConflict on a lost race, non-nil on real failures.
func (r *MemeRepository) ClaimStatus(ctx context.Context, id string, from, to domain.AnalysisStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkSuccess writes enrichment fields and moves the record to success.
// Compare-and-swap on the expected status so concurrent mutations never
// interleave into a half-written record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - from: expected current status.
//   - analysis: enrichment fields from the vision service.
// Returns:
//   - error: ErrStatusConflict on a lost race, non-nil on real failures.
func (r *MemeRepository) MarkSuccess(ctx context.Context, id string, from domain.AnalysisStatus, analysis *domain.Analysis) error {
	res := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":       domain.StatusSuccess,
			"title":        analysis.Title,
			"description":  analysis.Description,
			"text_content": analysis.TextContent,
			"tags":         domain.StringArray(analysis.Tags),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// MarkFailure increments the retry counter and moves the record to
// failed_retryable, or failed_permanent once the counter reaches the ceiling.
// The counter bump and the status decision happen in one atomic update.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - from: expected current status.
//   - ceiling: configured maximum automatic retry attempts.
// Returns:
//   - error: ErrStatusConflict on a lost race, non-nil on real failures.
func (r *MemeRepository) MarkFailure(ctx context.Context, id string, from domain.AnalysisStatus, ceiling int) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"status": gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END",
				ceiling, string(domain.StatusFailedPermanent), string(domain.StatusFailedRetryable)),
			"last_retry_at": now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ResetForReanalysis forces a record back to pending with a zero retry
// counter, regardless of its current status. This is the manual escape hatch
// out of failed_permanent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - error: gorm.ErrRecordNotFound if absent, non-nil on failure.
func (r *MemeRepository) ResetForReanalysis(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      domain.StatusPending,
			"retry_count": 0,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateContent writes admin-edited enrichment fields and marks the record
// success, since a curated record no longer needs analysis.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
//   - analysis: curated enrichment fields.
// Returns:
//   - error: gorm.ErrRecordNotFound if absent, non-nil on failure.
func (r *MemeRepository) UpdateContent(ctx context.Context, id string, analysis *domain.Analysis) error {
	res := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       domain.StatusSuccess,
			"title":        analysis.Title,
			"description":  analysis.Description,
			"text_content": analysis.TextContent,
			"tags":         domain.StringArray(analysis.Tags),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - error: gorm.ErrRecordNotFound if absent, non-nil on failure.
func (r *MemeRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.MemeRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchOptions controls keyword search and admin listing.
type SearchOptions struct {
	// Query holds space-separated keywords; every keyword must match.
	Query string
	// Status filters by lifecycle status; empty means success-only public
	// search when AdminView is false, or all statuses when true.
	Status domain.AnalysisStatus
	// AdminView includes non-success records and exposes status filtering.
	AdminView bool
	Limit     int
	Offset    int
	// Random orders results randomly instead of newest-first.
	Random bool
}

// Search runs a keyword match over title, description, extracted text, and
// tags. Keywords are ANDed; each keyword may match any of the four fields.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - opts: search options.
// Returns:
//   - []domain.MemeRecord: matching page of records.
//   - int64: total matching count.
//   - error: non-nil if the query fails.
func (r *MemeRepository) Search(ctx context.Context, opts SearchOptions) ([]domain.MemeRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.MemeRecord{})

	switch {
	case opts.Status != "":
		query = query.Where("status = ?", opts.Status)
	case !opts.AdminView:
		query = query.Where("status = ?", domain.StatusSuccess)
	}

	for _, keyword := range strings.Fields(strings.ToLower(opts.Query)) {
		pattern := "%" + keyword + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(text_content) LIKE ? OR LOWER(tags) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	if opts.Random {
		query = query.Order("RANDOM()")
	} else {
		query = query.Order("created_at DESC, id DESC")
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var records []domain.MemeRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search records: %w", err)
	}
	return records, total, nil
}

// Stats returns record counts per lifecycle status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.StatusCounts: aggregated counts.
//   - error: non-nil if a count query fails.
func (r *MemeRepository) Stats(ctx context.Context) (*domain.StatusCounts, error) {
	counts := &domain.StatusCounts{}
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&domain.MemeRecord{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, rw := range rows {
		counts.Total += rw.N
		switch domain.AnalysisStatus(rw.Status) {
		case domain.StatusPending:
			counts.Pending = rw.N
		case domain.StatusSuccess:
			counts.Success = rw.N
		case domain.StatusFailedRetryable:
			counts.FailedRetryable = rw.N
		case domain.StatusFailedPermanent:
			counts.FailedPermanent = rw.N
		}
	}
	return counts, nil
}
