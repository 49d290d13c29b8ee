// Package server exposes keyword ingestion and lookup over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/FranksOps/kwscout/internal/pipeline"
	"github.com/FranksOps/kwscout/internal/storage"
)

// DefaultOwnerHeader carries the caller's owner id.
const DefaultOwnerHeader = "X-Owner-ID"

// Config configures the HTTP layer.
type Config struct {
	// OwnerHeader names the request header holding the owner id. Identity is
	// established upstream; requests without it are rejected.
	OwnerHeader string
	// BodyLimit caps request bodies, and therefore uploads, in bytes.
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps the Fiber app and its dependencies.
type Server struct {
	App    *fiber.App
	cfg    Config
	store  storage.Backend
	ingest *pipeline.Pipeline
	logger *slog.Logger
}

// New creates a server with middleware and routes registered.
func New(cfg Config, store storage.Backend, ingest *pipeline.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OwnerHeader == "" {
		cfg.OwnerHeader = DefaultOwnerHeader
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 4 * 1024 * 1024
	}

	s := &Server{cfg: cfg, store: store, ingest: ingest, logger: logger}

	s.App = fiber.New(fiber.Config{
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: s.handleError,
	})

	s.App.Use(recover.New())
	s.App.Use(s.logRequests)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.App.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := s.App.Group("/api/v1", s.requireOwner)
	v1.Get("/keywords", s.listKeywords)
	v1.Post("/keywords", s.createKeywords)
	v1.Get("/keywords/:id", s.showKeyword)
	v1.Get("/downloads", s.downloadKeywords)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	s.logger.Info("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
		"owner_id", c.Get(s.cfg.OwnerHeader),
	)
	return err
}

// handleError renders errors that escaped a handler in the API error envelope.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "err", err)
	}

	return jsonError(c, code, errorCode(code), message)
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "file_too_large"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return "request_error"
	}
}
