package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/memedex/internal/progress"
)

// ProgressHandler exposes pipeline run progress.
type ProgressHandler struct {
	tracker *progress.Tracker
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(tracker *progress.Tracker) *ProgressHandler {
	return &ProgressHandler{tracker: tracker}
}

// GetProgress handles GET /api/progress, returning a snapshot for every run
// kind.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"runs": h.tracker.SnapshotAll(),
	})
}

// GetProgressByKind handles GET /api/progress/:kind.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProgressHandler) GetProgressByKind(c *gin.Context) {
	kind := progress.RunKind(c.Param("kind"))

	known := false
	for _, k := range progress.Kinds() {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown run kind: " + string(kind),
		})
		return
	}

	c.JSON(http.StatusOK, h.tracker.SnapshotOf(kind))
}
