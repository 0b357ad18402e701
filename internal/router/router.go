package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/siddharthareddy0/quiz-hosting/internal/config"
	"github.com/siddharthareddy0/quiz-hosting/internal/handler"
	"github.com/siddharthareddy0/quiz-hosting/internal/middleware"
	"github.com/siddharthareddy0/quiz-hosting/internal/response"
	"github.com/siddharthareddy0/quiz-hosting/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	Admin   *handler.AdminHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Device-Fingerprint"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the unauthenticated flush route (60 per minute per IP).
	flushLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Flush (Public, Rate Limited) ───────────────────────────────
	// sendBeacon cannot set headers, so the token rides in the body and
	// authentication happens inside the handler.
	public := router.Group("/api/v1")
	{
		public.POST("/exams/:exam_id/flush",
			flushLimiter.Middleware(),
			handlers.Attempt.Flush,
		)
	}

	// ─── 2. Candidate Group (JWT + Fingerprint) ────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.ExtractFingerprint(),
	)
	{
		candidateAPI.GET("/exams/:exam_id/session-status", handlers.Attempt.SessionStatus)
		candidateAPI.GET("/exams/:exam_id/paper", handlers.Attempt.Paper)
		candidateAPI.POST("/exams/:exam_id/start", handlers.Attempt.Start)
		candidateAPI.PUT("/exams/:exam_id/progress", handlers.Attempt.SaveProgress)
		candidateAPI.POST("/exams/:exam_id/submit", handlers.Attempt.Submit)
		candidateAPI.GET("/exams/:exam_id/review", handlers.Attempt.Review)
	}

	// ─── 3. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/exams/:exam_id/attempts", handlers.Admin.ListAttempts)
		adminAPI.POST("/exams/:exam_id/attempts/:user_id/rescore", handlers.Admin.Rescore)
	}

	// ─── 4. WebSocket Group (Admin WS Auth) ────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAdminJWT(authService))
	{
		ws.GET("/admin/exams/:exam_id/monitor", handlers.Monitor.MonitorStream)
	}

	return router
}
