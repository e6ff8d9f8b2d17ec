package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/memedex/internal/api/handler"
	"github.com/timmy/memedex/internal/api/middleware"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/pipeline"
	"github.com/timmy/memedex/internal/progress"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/source"
	"github.com/timmy/memedex/internal/storage"
)

// RouterConfig bundles the wiring the HTTP surface needs.
type RouterConfig struct {
	Mode     string
	AdminKey string
	CORS     middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	repo *repository.MemeRepository,
	store storage.ContentStore,
	p *pipeline.Pipeline,
	tracker *progress.Tracker,
	sources []source.Source,
	log *logger.Logger,
	cfg RouterConfig,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	searchHandler := handler.NewSearchHandler(repo, store)
	memeHandler := handler.NewMemeHandler(repo, store)
	progressHandler := handler.NewProgressHandler(tracker)
	adminHandler := handler.NewAdminHandler(p, repo, store, sources, log)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Local storage serves blobs directly; S3 URLs resolve to the bucket.
	if local, ok := store.(*storage.LocalStore); ok {
		r.Static("/uploads", local.BaseDir())
	}

	// Public API routes
	api := r.Group("/api")
	{
		// Search
		api.GET("/search", searchHandler.Search)

		// Memes
		api.GET("/memes", memeHandler.ListMemes)
		api.GET("/memes/:id", memeHandler.GetMeme)

		// Stats and progress
		api.GET("/stats", searchHandler.GetStats)
		api.GET("/progress", progressHandler.GetProgress)
		api.GET("/progress/:kind", progressHandler.GetProgressByKind)
	}

	// Admin routes, guarded by the shared key
	admin := r.Group("/api/admin", middleware.AdminAuth(cfg.AdminKey))
	{
		admin.POST("/trigger-fetch", adminHandler.TriggerFetch)
		admin.POST("/trigger-retry", adminHandler.TriggerRetry)
		admin.POST("/trigger-remote-fetch", adminHandler.TriggerRemoteFetch)

		admin.GET("/memes", adminHandler.ListMemes)
		admin.PUT("/memes/:id", adminHandler.UpdateMeme)
		admin.DELETE("/memes/:id", adminHandler.DeleteMeme)
		admin.POST("/memes/:id/reanalyze", adminHandler.ReanalyzeMeme)
	}

	return r
}
