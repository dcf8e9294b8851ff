// Package api exposes the telemetry service over HTTP: the ingest
// endpoint, series queries, the directory listing, health, metrics and
// the websocket stream.
package api

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cenems-telemetry/internal/normalization"
	"cenems-telemetry/internal/observability"
	"cenems-telemetry/internal/storage"
	"cenems-telemetry/internal/stream"
)

// ServerConfig holds the HTTP server wiring.
type ServerConfig struct {
	Pipeline *normalization.Pipeline
	Backend  storage.Backend
	Hub      *stream.Hub
	Archiver enqueuer
	Logger   *log.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	app *gin.Engine
}

// NewServer builds the gin engine with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	app := gin.New()
	app.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	app.Use(cors.New(corsConfig))

	var hub broadcaster
	if cfg.Hub != nil {
		hub = cfg.Hub
	}
	handlers := NewHandlers(cfg.Pipeline, cfg.Backend, hub, cfg.Archiver, cfg.Logger)

	app.GET("/health", handlers.Health)
	app.GET("/metrics", gin.WrapH(observability.Handler()))

	api := app.Group("/api/v1")
	{
		api.POST("/ingest", handlers.Ingest)
		api.GET("/latest", handlers.Latest)
		api.GET("/timeseries", handlers.Timeseries)
		api.GET("/buildings", handlers.Buildings)
		api.GET("/devices", handlers.Devices)
	}

	if cfg.Hub != nil {
		wsHandler := NewWSHandler(cfg.Hub, cfg.Logger)
		app.GET("/ws", wsHandler.HandleSubscriber)
	}

	return &Server{app: app}
}

// Engine exposes the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.app
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.app.Run(addr)
}
