package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cognivia/exam-engine/internal/config"
	"github.com/cognivia/exam-engine/internal/handler"
	"github.com/cognivia/exam-engine/internal/middleware"
	"github.com/cognivia/exam-engine/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for attempt loads (30 requests per minute per IP): the
	// load path fans out to the upstream platform.
	loadLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	{
		attempts.POST("/load", loadLimiter.Middleware(), handlers.Session.LoadAttempt)

		attempts.GET("/:attempt_id/state", handlers.Session.GetState)
		attempts.GET("/:attempt_id/summary", handlers.Session.GetSummary)

		attempts.POST("/:attempt_id/jump", handlers.Session.Jump)
		attempts.POST("/:attempt_id/answer", handlers.Session.SubmitAnswer)
		attempts.POST("/:attempt_id/clear", handlers.Session.ClearResponse)
		attempts.POST("/:attempt_id/review", handlers.Session.ToggleReview)

		attempts.POST("/:attempt_id/section-submit", handlers.Session.RequestSectionSubmit)
		attempts.POST("/:attempt_id/test-submit", handlers.Session.RequestTestSubmit)
		attempts.POST("/:attempt_id/confirm-submit", handlers.Session.ConfirmSubmit)
		attempts.POST("/:attempt_id/cancel-submit", handlers.Session.CancelSubmit)
		attempts.POST("/:attempt_id/finalize", handlers.Session.Finalize)
	}

	// ─── WebSocket ─────────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
