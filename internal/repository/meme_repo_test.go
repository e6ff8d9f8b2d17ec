package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/memedex/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *MemeRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	// An in-memory sqlite database exists per connection; a single-conn pool
	// keeps every goroutine on the same database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.MemeRecord{}))
	return NewMemeRepository(db)
}

func newRecord(hash string) *domain.MemeRecord {
	return &domain.MemeRecord{
		ID:          uuid.New().String(),
		ContentHash: hash,
		SourceKind:  "discord",
		SourceRef:   "chan/msg",
		FilePath:    hash[:2] + "/" + hash + ".png",
		Format:      "png",
		FileSize:    1234,
		Status:      domain.StatusPending,
	}
}

func TestCreateIfAbsentDedup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newRecord("aabbccdd")
	require.NoError(t, repo.CreateIfAbsent(ctx, first))

	// Same content hash from another source loses the insert
	second := newRecord("aabbccdd")
	second.SourceKind = "remote"
	err := repo.CreateIfAbsent(ctx, second)
	require.ErrorIs(t, err, ErrDuplicateContent)

	// The surviving row is the first one
	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "discord", got.SourceKind)

	exists, err := repo.ExistsByContentHash(ctx, "aabbccdd")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsByContentHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCreateIfAbsentConcurrentSameHash(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Two ingests racing on identical bytes must converge to one row, with
	// the loser told it hit a duplicate rather than an error.
	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newRecord("cafef00d")
			if i%2 == 1 {
				rec.SourceKind = "remote"
			}
			errs[i] = repo.CreateIfAbsent(ctx, rec)
		}(i)
	}
	wg.Wait()

	var wins, dups int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrDuplicateContent):
			dups++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, racers-1, dups)

	var count int64
	require.NoError(t, repo.db.Model(&domain.MemeRecord{}).Where("content_hash = ?", "cafef00d").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestClaimStatusIsCompareAndSwap(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("11223344")
	rec.Status = domain.StatusFailedRetryable
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	require.NoError(t, repo.ClaimStatus(ctx, rec.ID, domain.StatusFailedRetryable, domain.StatusPending))

	// A second claim against the old status loses
	err := repo.ClaimStatus(ctx, rec.ID, domain.StatusFailedRetryable, domain.StatusPending)
	require.ErrorIs(t, err, ErrStatusConflict)

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
}

func TestMarkSuccessWritesAnalysis(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("55667788")
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	analysis := &domain.Analysis{
		Title:       "Distracted boyfriend",
		Description: "A man looks back at another woman",
		TextContent: "",
		Tags:        []string{"distracted", "boyfriend", "classic"},
	}
	require.NoError(t, repo.MarkSuccess(ctx, rec.ID, domain.StatusPending, analysis))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, got.Status)
	require.Equal(t, "Distracted boyfriend", got.Title)
	require.Equal(t, domain.StringArray{"distracted", "boyfriend", "classic"}, got.Tags)

	// Record is settled; a late success from a stale worker loses
	err = repo.MarkSuccess(ctx, rec.ID, domain.StatusPending, analysis)
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestMarkFailureCountsUpToCeiling(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("99aabbcc")
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	const ceiling = 3

	// First two failures stay retryable
	for i := 1; i < ceiling; i++ {
		require.NoError(t, repo.MarkFailure(ctx, rec.ID, domain.StatusPending, ceiling))
		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailedRetryable, got.Status)
		require.Equal(t, i, got.RetryCount)
		require.NotNil(t, got.LastRetryAt)

		require.NoError(t, repo.ClaimStatus(ctx, rec.ID, domain.StatusFailedRetryable, domain.StatusPending))
	}

	// The failure that reaches the ceiling is permanent
	require.NoError(t, repo.MarkFailure(ctx, rec.ID, domain.StatusPending, ceiling))
	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailedPermanent, got.Status)
	require.Equal(t, ceiling, got.RetryCount)
}

func TestResetForReanalysis(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("ddeeff00")
	rec.Status = domain.StatusFailedPermanent
	rec.RetryCount = 24
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	require.NoError(t, repo.ResetForReanalysis(ctx, rec.ID))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, got.Status)
	require.Equal(t, 0, got.RetryCount)

	err = repo.ResetForReanalysis(ctx, "no-such-id")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateContentMarksSuccess(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("12ab34cd")
	rec.Status = domain.StatusFailedPermanent
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	analysis := &domain.Analysis{
		Title:       "Hand-curated title",
		Description: "Fixed up by an admin",
		Tags:        []string{"curated"},
	}
	require.NoError(t, repo.UpdateContent(ctx, rec.ID, analysis))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, got.Status)
	require.Equal(t, "Hand-curated title", got.Title)

	err = repo.UpdateContent(ctx, "no-such-id", analysis)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord("fedcba98")
	require.NoError(t, repo.CreateIfAbsent(ctx, rec))

	require.NoError(t, repo.Delete(ctx, rec.ID))

	_, err := repo.GetByID(ctx, rec.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.Delete(ctx, rec.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// The hash is free again after deletion
	again := newRecord("fedcba98")
	require.NoError(t, repo.CreateIfAbsent(ctx, again))
}

func seedSearchFixtures(t *testing.T, repo *MemeRepository) {
	t.Helper()
	ctx := context.Background()

	fixtures := []struct {
		hash   string
		status domain.AnalysisStatus
		title  string
		desc   string
		text   string
		tags   []string
	}{
		{"hash0001", domain.StatusSuccess, "Grumpy cat", "A very grumpy cat", "NO", []string{"cat", "grumpy"}},
		{"hash0002", domain.StatusSuccess, "Happy dog", "A dog at the beach", "", []string{"dog", "beach"}},
		{"hash0003", domain.StatusSuccess, "Cat at beach", "A cat enjoying the beach", "vacation", []string{"cat", "beach"}},
		{"hash0004", domain.StatusPending, "", "", "", nil},
		{"hash0005", domain.StatusFailedRetryable, "", "", "", nil},
	}
	for _, f := range fixtures {
		rec := newRecord(f.hash)
		rec.Status = f.status
		rec.Title = f.title
		rec.Description = f.desc
		rec.TextContent = f.text
		rec.Tags = f.tags
		require.NoError(t, repo.CreateIfAbsent(ctx, rec))
	}
}

func TestSearchKeywordsAreANDed(t *testing.T) {
	repo := newTestRepo(t)
	seedSearchFixtures(t, repo)
	ctx := context.Background()

	// Single keyword matches title or tags
	records, total, err := repo.Search(ctx, SearchOptions{Query: "cat"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, records, 2)

	// Both keywords must match, possibly in different fields
	records, total, err = repo.Search(ctx, SearchOptions{Query: "cat beach"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "Cat at beach", records[0].Title)

	// Case-insensitive
	_, total, err = repo.Search(ctx, SearchOptions{Query: "GRUMPY"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	// No match
	_, total, err = repo.Search(ctx, SearchOptions{Query: "cat dog"})
	require.NoError(t, err)
	require.EqualValues(t, 0, total)
}

func TestSearchVisibility(t *testing.T) {
	repo := newTestRepo(t)
	seedSearchFixtures(t, repo)
	ctx := context.Background()

	// Public search sees success records only
	_, total, err := repo.Search(ctx, SearchOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	// Admin view sees everything
	_, total, err = repo.Search(ctx, SearchOptions{AdminView: true})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)

	// Status filter narrows the admin view
	records, total, err := repo.Search(ctx, SearchOptions{AdminView: true, Status: domain.StatusFailedRetryable})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, domain.StatusFailedRetryable, records[0].Status)
}

func TestSearchPagination(t *testing.T) {
	repo := newTestRepo(t)
	seedSearchFixtures(t, repo)
	ctx := context.Background()

	page1, total, err := repo.Search(ctx, SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, page1, 2)

	page2, _, err := repo.Search(ctx, SearchOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)

	// Pages never overlap
	for _, a := range page1 {
		require.NotEqual(t, a.ID, page2[0].ID)
	}
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	seedSearchFixtures(t, repo)

	counts, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, counts.Total)
	require.EqualValues(t, 3, counts.Success)
	require.EqualValues(t, 1, counts.Pending)
	require.EqualValues(t, 1, counts.FailedRetryable)
	require.EqualValues(t, 0, counts.FailedPermanent)
}

func TestListByStatusOrdersOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newRecord("aaaa0001")
	first.Status = domain.StatusFailedRetryable
	require.NoError(t, repo.CreateIfAbsent(ctx, first))

	second := newRecord("aaaa0002")
	second.Status = domain.StatusFailedRetryable
	require.NoError(t, repo.CreateIfAbsent(ctx, second))

	records, err := repo.ListByStatus(ctx, domain.StatusFailedRetryable, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var ids []string
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID)

	records, err = repo.ListByStatus(ctx, domain.StatusPending, 0, 0)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
