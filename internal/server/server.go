// Package server provides the HTTP API for companions, their knowledge and chat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/companion/internal/config"
	"github.com/hyperjump/companion/internal/indexer"
	"github.com/hyperjump/companion/internal/memory"
	"github.com/hyperjump/companion/internal/models"
	"github.com/hyperjump/companion/internal/storage"
)

// Server is the HTTP server for the companion API.
type Server struct {
	store       storage.Storage
	pipeline    *indexer.Pipeline
	coordinator *memory.Coordinator
	generator   memory.Generator
	config      *config.Config
	limiter     *userLimiter
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	pipeline *indexer.Pipeline,
	coordinator *memory.Coordinator,
	generator memory.Generator,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:       store,
		pipeline:    pipeline,
		coordinator: coordinator,
		generator:   generator,
		config:      cfg,
		limiter:     newUserLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		logger:      logger,
	}
}

// Router returns the HTTP handler with all routes and middleware mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/companions", s.handleListCompanions)
		r.Route("/companions/{companionId}", func(r chi.Router) {
			r.Use(validCompanion)
			r.Get("/", s.handleGetCompanion)
			r.Put("/", s.handleSaveCompanion)
			r.Delete("/", s.handleDeleteCompanion)

			r.Post("/knowledge", s.handleIngestSources)
			r.Post("/knowledge/upload", s.handleUpload)
			r.Delete("/knowledge", s.handleClearKnowledge)

			r.With(s.limiter.middleware).Post("/chat", s.handleChat)
			r.Get("/history", s.handleHistory)
			r.Delete("/history", s.handleClearHistory)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// uploadDir is where uploaded documents of a companion are kept. It fails for ids that
// would resolve outside <knowledge path>/uploads.
func (s *Server) uploadDir(companionID string) (string, error) {
	if err := models.ValidateCompanionID(companionID); err != nil {
		return "", err
	}
	root := filepath.Join(s.config.Storage.KnowledgePath, "uploads")
	dir := filepath.Join(root, companionID)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("%w: companion_id %q escapes the upload directory", models.ErrInvalidKey, companionID)
	}
	return dir, nil
}
