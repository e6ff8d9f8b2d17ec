package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memedex/internal/api/middleware"
	"github.com/timmy/memedex/internal/domain"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/pipeline"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/source"
	"github.com/timmy/memedex/internal/source/remote"
	"github.com/timmy/memedex/internal/storage"
	"gorm.io/gorm"
)

// AdminHandler handles admin curation and pipeline trigger endpoints.
type AdminHandler struct {
	pipeline *pipeline.Pipeline
	repo     *repository.MemeRepository
	store    storage.ContentStore
	sources  []source.Source
	logger   *logger.Logger
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - p: pipeline instance driving runs.
//   - repo: meme repository instance.
//   - store: content store used to resolve image URLs.
//   - sources: configured channel sources used by triggered fetch runs.
//   - log: logger instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(
	p *pipeline.Pipeline,
	repo *repository.MemeRepository,
	store storage.ContentStore,
	sources []source.Source,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		pipeline: p,
		repo:     repo,
		store:    store,
		sources:  sources,
		logger:   log,
	}
}

// UpdateMemeRequest carries admin-edited enrichment fields.
type UpdateMemeRequest struct {
	Title       string   `json:"title" binding:"required,max=100"`
	Description string   `json:"description" binding:"required"`
	TextContent string   `json:"text_content"`
	Tags        []string `json:"tags" binding:"required,min=1"`
}

// RemoteFetchRequest carries an explicit URL list to ingest.
type RemoteFetchRequest struct {
	URLs []string `json:"urls" binding:"required,min=1"`
}

// TriggerFetch handles POST /api/admin/trigger-fetch. The run executes in the
// background; progress is observable via the progress endpoint.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerFetch(c *gin.Context) {
	if len(h.sources) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No channel sources configured",
		})
		return
	}

	middleware.GetLogger(c).Info("Fetch run triggered")
	go func() {
		if _, err := h.pipeline.RunFetch(context.Background(), h.sources); err != nil && !errors.Is(err, pipeline.ErrRunActive) {
			h.logger.WithError(err).Error("Triggered fetch run failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Fetch run triggered",
	})
}

// TriggerRetry handles POST /api/admin/trigger-retry.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerRetry(c *gin.Context) {
	go func() {
		if _, err := h.pipeline.RunRetry(context.Background()); err != nil && !errors.Is(err, pipeline.ErrRunActive) {
			h.logger.WithError(err).Error("Triggered retry sweep failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Retry sweep triggered",
	})
}

// TriggerRemoteFetch handles POST /api/admin/trigger-remote-fetch. The body
// carries an explicit URL list; invalid entries are dropped by the adapter.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerRemoteFetch(c *gin.Context) {
	var req RemoteFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	adapter := remote.NewAdapter(req.URLs)
	if adapter.Len() == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No valid http(s) URLs in request",
		})
		return
	}

	go func() {
		if _, err := h.pipeline.RunRemoteFetch(context.Background(), adapter); err != nil && !errors.Is(err, pipeline.ErrRunActive) {
			h.logger.WithError(err).Error("Triggered remote fetch failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Remote fetch triggered",
		"count":   adapter.Len(),
	})
}

// ListMemes handles GET /api/admin/memes. Unlike the public list, all
// statuses are visible and an optional status filter applies.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListMemes(c *gin.Context) {
	limit, offset := pageParams(c)

	opts := repository.SearchOptions{
		Query:     c.Query("q"),
		AdminView: true,
		Limit:     limit,
		Offset:    offset,
	}
	if status := c.Query("status"); status != "" {
		s := domain.AnalysisStatus(status)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unknown status: " + status,
			})
			return
		}
		opts.Status = s
	}

	records, total, err := h.repo.Search(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list memes: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Results: toViews(records, h.store),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// UpdateMeme handles PUT /api/admin/memes/:id. A curated edit marks the
// record success regardless of its prior status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) UpdateMeme(c *gin.Context) {
	id := c.Param("id")

	var req UpdateMemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	analysis := &domain.Analysis{
		Title:       req.Title,
		Description: req.Description,
		TextContent: req.TextContent,
		Tags:        req.Tags,
	}
	if err := h.repo.UpdateContent(c.Request.Context(), id, analysis); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Meme not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update meme: " + err.Error(),
		})
		return
	}

	record, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reload meme: " + err.Error(),
		})
		return
	}

	middleware.GetLogger(c).WithField(logger.FieldRecordID, id).Info("Meme updated by admin")
	c.JSON(http.StatusOK, toView(record, h.store))
}

// DeleteMeme handles DELETE /api/admin/memes/:id. The row and the stored
// blob both go; refetching the same bytes later creates a fresh record.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) DeleteMeme(c *gin.Context) {
	id := c.Param("id")

	if err := h.pipeline.DeleteRecord(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Meme not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete meme: " + err.Error(),
		})
		return
	}

	middleware.GetLogger(c).WithField(logger.FieldRecordID, id).Info("Meme deleted by admin")
	c.JSON(http.StatusOK, gin.H{
		"message": "Meme deleted",
	})
}

// ReanalyzeMeme handles POST /api/admin/memes/:id/reanalyze. The record is
// reset to pending with a zero retry counter and analyzed immediately.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ReanalyzeMeme(c *gin.Context) {
	id := c.Param("id")

	if err := h.pipeline.Reanalyze(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Meme not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reanalyze meme: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Reanalysis started",
	})
}
