// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/auth"
	"github.com/todmy/docguard/internal/conflict"
	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/ingest"
	"github.com/todmy/docguard/internal/resolution"
	"github.com/todmy/docguard/internal/storage"
)

// ServerConfig holds the services the handlers call
type ServerConfig struct {
	Modules    storage.ModuleRepository
	Pipeline   *ingest.Pipeline
	Decomposer *decompose.Decomposer
	Index      *embeddings.Index
	Detector   *conflict.Detector
	Engine     *resolution.Engine
	// Auth protects /api/v1 when set
	Auth           auth.TokenValidator
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	router *chi.Mux
	cfg    ServerConfig
	logger *zap.Logger
	http   *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{router: r, cfg: cfg, logger: cfg.Logger}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Auth != nil {
			r.Use(auth.Middleware(s.cfg.Auth))
		}

		r.Post("/decompose", s.handleDecompose)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/documents", s.handleIngest)
			r.Get("/modules", s.handleListModules)
			r.Post("/search", s.handleSearch)
			r.Get("/embeddings/stats", s.handleEmbeddingStats)
			r.Post("/embeddings/refresh", s.handleRefreshEmbeddings)
			r.Post("/conflicts/scan", s.handleScanProject)
			r.Get("/conflicts", s.handleListConflicts)
		})

		r.Delete("/documents/{documentID}", s.handleDeleteDocument)

		r.Route("/modules/{moduleID}", func(r chi.Router) {
			r.Get("/", s.handleGetModule)
			r.Put("/grounded", s.handleSetGrounded)
			r.Post("/conflicts/detect", s.handleDetectModule)
		})

		r.Post("/conflicts/batch-resolve", s.handleBatchResolve)
		r.Route("/conflicts/{conflictID}", func(r chi.Router) {
			r.Get("/", s.handleGetConflict)
			r.Post("/acknowledge", s.handleAcknowledge)
			r.Get("/suggestions", s.handleSuggest)
			r.Get("/recommendation", s.handleRecommend)
			r.Get("/preview", s.handlePreview)
			r.Post("/resolve", s.handleResolve)
			r.Get("/history", s.handleHistory)
			r.Post("/merged-content", s.handleMergedContent)
			r.Post("/clarifying-context", s.handleClarifyingContext)
		})
	})
}

// ServeHTTP lets tests drive the router directly
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is canceled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
