package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	repo  *repository.MemeRepository
	store storage.ContentStore
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - repo: meme repository instance.
//   - store: content store used to resolve image URLs.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(repo *repository.MemeRepository, store storage.ContentStore) *SearchHandler {
	return &SearchHandler{
		repo:  repo,
		store: store,
	}
}

// Search handles GET /api/search. Keywords in the query are AND-matched
// against title, description, text content and tags. Only successfully
// analyzed records are visible here.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	limit, offset := pageParams(c)
	random := c.Query("random") == "true"

	records, total, err := h.repo.Search(c.Request.Context(), repository.SearchOptions{
		Query:  query,
		Limit:  limit,
		Offset: offset,
		Random: random,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
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

// GetStats handles GET /api/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) GetStats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// pageParams extracts limit/offset query parameters with defaults and caps.
func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
