package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/storage"
)

// Server is the API server over a run store.
type Server struct {
	config Config
	storer storage.Driver
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. metrics, when non-nil, is mounted at
// /metrics.
func NewServer(config Config, storer storage.Driver, metrics http.Handler, log *slog.Logger) (*Server, error) {
	if storer == nil {
		return nil, errors.New("api: storage driver is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		storer: storer,
		logger: logger.OrNop(log),
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/runs", s.handleListRuns)
	app.Get("/v1/runs/:id", s.handleGetRun)
	app.Get("/v1/runs/:id/documents", s.handleListDocuments)
	app.Get("/v1/turns/:hash", s.handleGetTurn)
	app.Get("/v1/turns/:hash/history", s.handleGetHistory)
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	return s, nil
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
