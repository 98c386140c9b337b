package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/internal/config"
	"github.com/clipsmith/clipsmith/internal/downloader"
	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/pipeline"
	"github.com/clipsmith/clipsmith/internal/session"
)

// Server exposes the compilation pipeline over HTTP.
type Server struct {
	app      *fiber.App
	logger   zerolog.Logger
	cfg      *config.Config
	store    *session.Store
	pipeline *pipeline.Pipeline
	dl       *downloader.Client
	exec     *ffmpeg.Executor
	validate *validator.Validate
}

// NewServer builds the fiber app with its middleware and routes.
func NewServer(logger zerolog.Logger, cfg *config.Config, store *session.Store, pl *pipeline.Pipeline, dl *downloader.Client, exec *ffmpeg.Executor) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "clipsmith",
			DisableStartupMessage: true,
		}),
		logger:   logger.With().Str("component", "api").Logger(),
		cfg:      cfg,
		store:    store,
		pipeline: pl,
		dl:       dl,
		exec:     exec,
		validate: validator.New(),
	}

	s.app.Use(fiberrecover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	s.app.Use(fiberlogger.New())

	s.app.Get("/health", s.health)

	apiV1 := s.app.Group("/api/v1")
	apiV1.Post("/videos/detect", s.detectVideos)
	apiV1.Post("/compilations", s.createCompilation)
	apiV1.Get("/compilations/:id", s.getCompilation)
	apiV1.Post("/compilations/:id/download", s.downloadCompilation)
	apiV1.Delete("/compilations/:id", s.deleteCompilation)

	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP on the configured host and port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info().Str("addr", addr).Msg("listening")
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
