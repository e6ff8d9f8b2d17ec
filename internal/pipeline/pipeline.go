// Package pipeline implements the ingestion-and-enrichment pipeline: fetch
// runs, retry sweeps, and remote-fetch runs, each exclusive within its own
// run kind. Records are claimed for work via compare-and-swap status
// transitions, so concurrent runs never mutate the same record.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/memedex/internal/analyzer"
	"github.com/timmy/memedex/internal/domain"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/progress"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/source"
	"github.com/timmy/memedex/internal/storage"
	_ "golang.org/x/image/webp"
)

// ErrRunActive indicates a run of the same kind is already executing.
// Triggers are rejected, not queued.
var ErrRunActive = errors.New("a run of this kind is already active")

// stalePendingAge is how old a pending record must be before a retry sweep
// considers it abandoned (crashed run, missed kick) and re-analyzes it.
const stalePendingAge = 15 * time.Minute

// Config holds pipeline tuning knobs.
type Config struct {
	// MaxRetryAttempts is the retry ceiling; at or above it a failing record
	// becomes failed_permanent.
	MaxRetryAttempts int
	// AnalyzeWorkers bounds concurrency of the analysis step. The vision
	// service is the throughput bottleneck and may rate-limit, so this is a
	// separate knob from fetch concurrency.
	AnalyzeWorkers int
}

// Pipeline drives the end-to-end ingestion flow.
type Pipeline struct {
	repo       *repository.MemeRepository
	store      storage.ContentStore
	analyzer   *analyzer.Client
	downloader *source.Downloader
	tracker    *progress.Tracker
	logger     *logger.Logger
	cfg        Config

	mu       sync.Mutex
	inflight map[progress.RunKind]bool
}

// New creates a Pipeline.
// Parameters:
//   - repo: record store repository.
//   - store: content store for image blobs.
//   - analyzerClient: vision-service client.
//   - downloader: HTTP downloader for source items.
//   - tracker: progress tracker shared with the monitoring API.
//   - log: base logger.
//   - cfg: pipeline configuration.
// Returns:
//   - *Pipeline: initialized pipeline.
func New(
	repo *repository.MemeRepository,
	store storage.ContentStore,
	analyzerClient *analyzer.Client,
	downloader *source.Downloader,
	tracker *progress.Tracker,
	log *logger.Logger,
	cfg Config,
) *Pipeline {
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.AnalyzeWorkers <= 0 {
		cfg.AnalyzeWorkers = 5
	}
	return &Pipeline{
		repo:       repo,
		store:      store,
		analyzer:   analyzerClient,
		downloader: downloader,
		tracker:    tracker,
		logger:     log,
		cfg:        cfg,
		inflight:   make(map[progress.RunKind]bool),
	}
}

// log returns a logger from context if available, otherwise the pipeline's.
func (p *Pipeline) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// tryBegin atomically sets the in-flight flag for kind. It returns false when
// a run of that kind is already active.
func (p *Pipeline) tryBegin(kind progress.RunKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[kind] {
		return false
	}
	p.inflight[kind] = true
	return true
}

// end clears the in-flight flag for kind, including on failure paths.
func (p *Pipeline) end(kind progress.RunKind) {
	p.mu.Lock()
	p.inflight[kind] = false
	p.mu.Unlock()
}

// IsRunning reports whether a run of kind is currently active.
func (p *Pipeline) IsRunning(kind progress.RunKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight[kind]
}

// RunFetch executes a full fetch run across the given sources: discover
// items, dedup, persist new pending records, then analyze them. At most one
// fetch run is active at a time; a second trigger returns ErrRunActive.
// Parameters:
//   - ctx: context; cancellation stops between items, the current item finishes.
//   - sources: configured channel-style sources.
// Returns:
//   - *RunStats: counters for the run.
//   - error: ErrRunActive if a fetch run is already executing.
func (p *Pipeline) RunFetch(ctx context.Context, sources []source.Source) (*RunStats, error) {
	return p.runIngest(ctx, progress.RunFetch, sources)
}

// RunRemoteFetch executes an ingest run over an explicit URL list.
// Parameters:
//   - ctx: context; cancellation stops between items.
//   - src: remote URL-list source supplied by the caller.
// Returns:
//   - *RunStats: counters for the run.
//   - error: ErrRunActive if a remote-fetch run is already executing.
func (p *Pipeline) RunRemoteFetch(ctx context.Context, src source.Source) (*RunStats, error) {
	return p.runIngest(ctx, progress.RunRemoteFetch, []source.Source{src})
}

// runIngest is the shared fetch/remote-fetch implementation.
func (p *Pipeline) runIngest(ctx context.Context, kind progress.RunKind, sources []source.Source) (*RunStats, error) {
	if !p.tryBegin(kind) {
		return nil, ErrRunActive
	}
	defer p.end(kind)

	stats := &RunStats{StartTime: time.Now()}
	p.tracker.BeginRun(kind, "discovering", 0)
	defer func() {
		stats.EndTime = time.Now()
		p.tracker.EndRun(kind, fmt.Sprintf(
			"run finished: discovered=%d new=%d duplicates=%d analyzed=%d failed=%d skipped=%d",
			stats.Discovered, stats.NewRecords, stats.Duplicates, stats.Analyzed, stats.Failed, stats.Skipped))
	}()

	log := p.log(ctx).WithField(logger.FieldRunKind, string(kind))
	log.WithField(logger.FieldCount, len(sources)).Info("Starting ingest run")

	var newIDs []string
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		ids, err := p.ingestSource(ctx, kind, src, stats)
		newIDs = append(newIDs, ids...)
		if err != nil {
			// A source-level failure aborts that source only; siblings
			// keep running.
			log.WithField(logger.FieldSource, src.Name()).WithError(err).Error("Source fetch aborted")
			p.tracker.Error(kind, fmt.Sprintf("source %s aborted: %v", src.Name(), err))
		}
	}

	p.tracker.SetPhase(kind, "analyzing")
	p.tracker.SetTotal(kind, len(newIDs))
	p.analyzeRecords(ctx, kind, newIDs, stats)

	log.WithFields(logger.Fields{
		"discovered": stats.Discovered,
		"new":        stats.NewRecords,
		"duplicates": stats.Duplicates,
		"analyzed":   stats.Analyzed,
		"failed":     stats.Failed,
		"duration":   time.Since(stats.StartTime).String(),
	}).Info("Ingest run completed")

	return stats, nil
}

// ingestSource walks one source's pages, downloads items, dedups, and
// persists new pending records. It returns the IDs of records it created.
func (p *Pipeline) ingestSource(ctx context.Context, kind progress.RunKind, src source.Source, stats *RunStats) ([]string, error) {
	log := p.log(ctx).WithFields(logger.Fields{
		logger.FieldRunKind: string(kind),
		logger.FieldSource:  src.Name(),
	})

	var newIDs []string
	cursor := ""
	for {
		if ctx.Err() != nil {
			return newIDs, nil
		}

		items, nextCursor, err := src.FetchBatch(ctx, cursor, 0)
		if err != nil {
			return newIDs, err
		}

		for _, item := range items {
			if ctx.Err() != nil {
				return newIDs, nil
			}
			stats.addDiscovered(1)

			id, err := p.ingestItem(ctx, src.Kind(), item)
			switch {
			case err == nil:
				stats.addNew(1)
				newIDs = append(newIDs, id)
				p.tracker.Log(kind, "ingested "+item.SourceRef)
			case errors.Is(err, repository.ErrDuplicateContent):
				stats.addDuplicate(1)
				log.WithField("item", item.SourceRef).Debug("Skipping duplicate content")
			default:
				// A single item failure never aborts the run.
				stats.addSkipped(1)
				log.WithField("item", item.SourceRef).WithError(err).Warn("Failed to ingest item")
				p.tracker.Error(kind, fmt.Sprintf("item %s: %v", item.SourceRef, err))
			}
		}

		if nextCursor == "" {
			return newIDs, nil
		}
		cursor = nextCursor
	}
}

// ingestItem downloads one item, dedups it by content hash, stores the blob,
// and inserts the pending record. Dedup happens strictly before the insert:
// the hash probe is a cheap fast path and the store's unique constraint
// settles races, so two concurrent ingests of the same bytes leave one row.
func (p *Pipeline) ingestItem(ctx context.Context, sourceKind string, item source.Item) (string, error) {
	data, format, err := p.downloader.Download(ctx, item.URL)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	if item.Format != "" {
		format = item.Format
	}

	contentHash := hashBytes(data)

	exists, err := p.repo.ExistsByContentHash(ctx, contentHash)
	if err != nil {
		return "", fmt.Errorf("failed to check content hash: %w", err)
	}
	if exists {
		return "", repository.ErrDuplicateContent
	}

	width, height, err := imageDimensions(data)
	if err != nil {
		p.log(ctx).WithError(err).Debug("Failed to decode image dimensions")
		width, height = 0, 0
	}

	// Content-addressed key: identical bytes map to the same blob, so a
	// racing duplicate upload is idempotent.
	storageKey := fmt.Sprintf("%s/%s.%s", contentHash[:2], contentHash, format)

	inStore, err := p.store.Exists(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("failed to check storage: %w", err)
	}
	if !inStore {
		if err := p.store.Upload(ctx, storageKey, bytes.NewReader(data), int64(len(data)), analyzer.MIMEType(format)); err != nil {
			return "", fmt.Errorf("failed to store blob: %w", err)
		}
	}

	record := &domain.MemeRecord{
		ID:          uuid.New().String(),
		ContentHash: contentHash,
		SourceKind:  sourceKind,
		SourceRef:   item.SourceRef,
		FilePath:    storageKey,
		Format:      format,
		Width:       width,
		Height:      height,
		FileSize:    int64(len(data)),
		Status:      domain.StatusPending,
	}
	if err := p.repo.CreateIfAbsent(ctx, record); err != nil {
		// ErrDuplicateContent propagates as-is: a concurrent run won the
		// insert and the shared blob stays in place.
		return "", err
	}
	return record.ID, nil
}

// RunRetry executes a retry sweep: every failed_retryable record is claimed
// back to pending and re-analyzed. Stale pending records (abandoned by a
// crashed or interrupted run) are swept too. At most one retry sweep is
// active at a time.
// Parameters:
//   - ctx: context; cancellation stops between records.
// Returns:
//   - *RunStats: counters for the sweep.
//   - error: ErrRunActive if a retry sweep is already executing.
func (p *Pipeline) RunRetry(ctx context.Context) (*RunStats, error) {
	if !p.tryBegin(progress.RunRetry) {
		return nil, ErrRunActive
	}
	defer p.end(progress.RunRetry)

	kind := progress.RunRetry
	stats := &RunStats{StartTime: time.Now()}
	p.tracker.BeginRun(kind, "selecting", 0)
	defer func() {
		stats.EndTime = time.Now()
		p.tracker.EndRun(kind, fmt.Sprintf(
			"sweep finished: claimed=%d analyzed=%d failed=%d",
			stats.Discovered, stats.Analyzed, stats.Failed))
	}()

	log := p.log(ctx).WithField(logger.FieldRunKind, string(kind))

	retryable, err := p.repo.ListByStatus(ctx, domain.StatusFailedRetryable, 0, 0)
	if err != nil {
		log.WithError(err).Error("Failed to list retryable records")
		return stats, nil
	}

	var ids []string
	for _, rec := range retryable {
		// Claiming failed_retryable -> pending takes ownership; a lost race
		// means another mutation path got there first and the record is
		// skipped this sweep.
		if err := p.repo.ClaimStatus(ctx, rec.ID, domain.StatusFailedRetryable, domain.StatusPending); err != nil {
			if !errors.Is(err, repository.ErrStatusConflict) {
				log.WithField(logger.FieldRecordID, rec.ID).WithError(err).Error("Failed to claim record")
			}
			continue
		}
		ids = append(ids, rec.ID)
	}

	// Crash recovery: pending records untouched for a while have no live
	// owner and would otherwise be stranded forever.
	pending, err := p.repo.ListByStatus(ctx, domain.StatusPending, 0, 0)
	if err != nil {
		log.WithError(err).Error("Failed to list pending records")
	} else {
		cutoff := time.Now().Add(-stalePendingAge)
		for _, rec := range pending {
			if rec.UpdatedAt.Before(cutoff) {
				ids = append(ids, rec.ID)
			}
		}
	}

	stats.addDiscovered(int64(len(ids)))
	p.tracker.SetPhase(kind, "analyzing")
	p.tracker.SetTotal(kind, len(ids))
	p.analyzeRecords(ctx, kind, ids, stats)

	log.WithFields(logger.Fields{
		"claimed":  len(ids),
		"analyzed": stats.Analyzed,
		"failed":   stats.Failed,
		"duration": time.Since(stats.StartTime).String(),
	}).Info("Retry sweep completed")

	return stats, nil
}

// analyzeRecords runs the bounded worker pool over pending record IDs.
func (p *Pipeline) analyzeRecords(ctx context.Context, kind progress.RunKind, ids []string, stats *RunStats) {
	if len(ids) == 0 {
		return
	}

	idsChan := make(chan string, p.cfg.AnalyzeWorkers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.AnalyzeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idsChan {
				// Shutdown stops between items; the in-flight item runs to
				// completion so the record is never left half-mutated.
				if ctx.Err() != nil {
					continue
				}
				itemCtx := context.WithoutCancel(ctx)
				if err := p.analyzeRecord(itemCtx, kind, id); err != nil {
					stats.addFailed(1)
				} else {
					stats.addAnalyzed(1)
				}
				p.tracker.Advance(kind, 1, "")
			}
		}()
	}

	for _, id := range ids {
		idsChan <- id
	}
	close(idsChan)
	wg.Wait()
}

// trackLog and trackError report to the run tracker. An empty kind means the
// analysis runs outside any tracked run (single-record reanalysis) and leaves
// the trackers alone.
func (p *Pipeline) trackLog(kind progress.RunKind, msg string) {
	if kind == "" {
		return
	}
	p.tracker.Log(kind, msg)
}

func (p *Pipeline) trackError(kind progress.RunKind, msg string) {
	if kind == "" {
		return
	}
	p.tracker.Error(kind, msg)
}

// analyzeRecord runs the per-record state machine once: download the blob,
// call the vision service, and CAS the outcome. Side effects stay confined
// to this one record.
func (p *Pipeline) analyzeRecord(ctx context.Context, kind progress.RunKind, id string) error {
	log := p.log(ctx).WithField(logger.FieldRecordID, id)
	if kind != "" {
		log = log.WithField(logger.FieldRunKind, string(kind))
	}

	record, err := p.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to load record for analysis")
		p.trackError(kind, fmt.Sprintf("record %s: load failed: %v", id, err))
		return err
	}
	if record.Status != domain.StatusPending {
		// Already settled by another mutation path (e.g. a concurrent admin
		// edit); nothing to do.
		return nil
	}

	reader, err := p.store.Download(ctx, record.FilePath)
	if err != nil {
		log.WithError(err).Error("Failed to read blob from content store")
		p.trackError(kind, fmt.Sprintf("record %s: blob read failed: %v", id, err))
		return p.failRecord(ctx, kind, log, record)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		log.WithError(err).Error("Failed to read blob bytes")
		p.trackError(kind, fmt.Sprintf("record %s: blob read failed: %v", id, err))
		return p.failRecord(ctx, kind, log, record)
	}

	analysis, err := p.analyzer.Analyze(ctx, data, record.Format)
	if err != nil {
		log.WithFields(logger.Fields{
			"failure_kind": string(analyzer.KindOf(err)),
			"retry_count":  record.RetryCount,
		}).WithError(err).Warn("Analysis failed")
		p.trackError(kind, fmt.Sprintf("record %s: %v", id, err))
		return p.failRecord(ctx, kind, log, record)
	}

	if err := p.repo.MarkSuccess(ctx, id, domain.StatusPending, analysis); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			log.Debug("Record settled concurrently, dropping analysis result")
			return nil
		}
		log.WithError(err).Error("Failed to persist analysis result")
		return err
	}

	p.trackLog(kind, fmt.Sprintf("analyzed %s: %s", id, analysis.Title))
	return nil
}

// failRecord applies the failure transition for one pending record.
func (p *Pipeline) failRecord(ctx context.Context, kind progress.RunKind, log *logger.Logger, record *domain.MemeRecord) error {
	err := p.repo.MarkFailure(ctx, record.ID, domain.StatusPending, p.cfg.MaxRetryAttempts)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil
	}
	if err != nil {
		log.WithError(err).Error("Failed to persist failure transition")
		return err
	}
	if record.RetryCount+1 >= p.cfg.MaxRetryAttempts {
		log.WithField("retry_count", record.RetryCount+1).Warn("Record reached retry ceiling, marking permanent")
		p.trackLog(kind, fmt.Sprintf("record %s reached retry ceiling", record.ID))
	}
	return errors.New("analysis failed")
}

// Reanalyze forces a record back to pending with a zero retry counter and
// kicks an immediate single-record analysis. Works from any status,
// including failed_permanent.
// Parameters:
//   - ctx: context for the reset; the analysis itself runs detached.
//   - id: record ID.
// Returns:
//   - error: non-nil if the record does not exist or the reset fails.
func (p *Pipeline) Reanalyze(ctx context.Context, id string) error {
	if err := p.repo.ResetForReanalysis(ctx, id); err != nil {
		return err
	}
	p.log(ctx).WithField(logger.FieldRecordID, id).Info("Record reset for reanalysis")

	go func() {
		// Detached from the request context; the retry sweep would also pick
		// the record up eventually, this just converges faster. No run kind:
		// a single-record analysis must not touch the run trackers.
		bg := context.Background()
		if err := p.analyzeRecord(bg, "", id); err != nil {
			p.logger.WithField(logger.FieldRecordID, id).WithError(err).Warn("Reanalysis attempt failed")
		}
	}()
	return nil
}

// DeleteRecord removes a record and its content store blob. The row goes
// first: once the hash is gone, a refetch of identical bytes is treated as
// new content.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: record ID.
// Returns:
//   - error: gorm.ErrRecordNotFound if absent, non-nil on failure.
func (p *Pipeline) DeleteRecord(ctx context.Context, id string) error {
	record, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, record.FilePath); err != nil {
		// The row is gone; an orphaned blob is re-used or overwritten if the
		// same content ever returns.
		p.log(ctx).WithField(logger.FieldRecordID, id).WithError(err).Error("Failed to delete blob")
	}
	return nil
}

// hashBytes returns the hex SHA-256 digest of data, the content fingerprint
// used for deduplication.
func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// imageDimensions decodes just the image header for width/height.
func imageDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
