package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/storage"
	"gorm.io/gorm"
)

// MemeHandler handles public meme browsing endpoints.
type MemeHandler struct {
	repo  *repository.MemeRepository
	store storage.ContentStore
}

// NewMemeHandler creates a new meme handler.
// Parameters:
//   - repo: meme repository instance.
//   - store: content store used to resolve image URLs.
// Returns:
//   - *MemeHandler: initialized handler.
func NewMemeHandler(repo *repository.MemeRepository, store storage.ContentStore) *MemeHandler {
	return &MemeHandler{
		repo:  repo,
		store: store,
	}
}

// ListMemes handles GET /api/memes. The public list shows successfully
// analyzed records only, newest first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MemeHandler) ListMemes(c *gin.Context) {
	limit, offset := pageParams(c)

	records, total, err := h.repo.Search(c.Request.Context(), repository.SearchOptions{
		Limit:  limit,
		Offset: offset,
	})
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

// GetMeme handles GET /api/memes/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MemeHandler) GetMeme(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Meme ID is required",
		})
		return
	}

	record, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Meme not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get meme: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toView(record, h.store))
}
