package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"askpdf/internal/bootstrap"
	"askpdf/internal/transport/http/handler"
)

type Handlers struct {
	Health   *handler.HealthHandler
	Sessions *handler.SessionHandler
	PDF      *handler.PDFHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if mw := corsMiddleware(app.Config.App.CORSOrigins); mw != nil {
		router.Use(mw)
	}

	healthHandler := handler.NewHealthHandler(
		app.Config.App.Name,
		app.Config.App.Env,
		app.StartedAt,
		map[string]handler.DependencyCheck{
			"mysql":    app.PingMySQL,
			"redis":    func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() },
			"rabbitmq": app.CheckRabbitMQ,
		},
	)

	RegisterRoutes(router, Handlers{
		Health:   healthHandler,
		Sessions: handler.NewSessionHandler(app.Sessions),
		PDF:      handler.NewPDFHandler(app.Ingest, app.Query, app.Config.RAG.MaxUploadMB),
	})
	return router
}

func RegisterRoutes(router *gin.Engine, h Handlers) {
	router.GET("/", h.Health.Welcome)
	router.GET("/healthz", h.Health.Check)

	api := router.Group("/api")
	api.GET("/health", h.Health.Liveness)
	api.POST("/sessions", h.Sessions.Create)
	api.GET("/sessions/:session_id", h.Sessions.Get)
	api.DELETE("/sessions/:session_id", h.Sessions.Delete)
	api.POST("/upload_pdf", h.PDF.Upload)
	api.POST("/ask_question", h.PDF.Ask)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}
