// Package web provides the JSON HTTP API for uploading tabular files and
// administering users.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/tablestore/internal/auth"
	"github.com/JonMunkholm/tablestore/internal/config"
	"github.com/JonMunkholm/tablestore/internal/core"
	mw "github.com/JonMunkholm/tablestore/internal/web/middleware"
)

// maxJSONBody caps request bodies of non-upload endpoints.
const maxJSONBody = 1 << 20

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Service *core.Service
	Tokens  *auth.Tokens
	Revoker auth.Revoker

	// Ready reports whether backing services are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

// Server is the HTTP server.
type Server struct {
	service *core.Service
	tokens  *auth.Tokens
	revoker auth.Revoker
	ready   func(ctx context.Context) error
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server with middleware and routes configured.
func NewServer(deps Deps, cfg *config.Config) *Server {
	s := &Server{
		service: deps.Service,
		tokens:  deps.Tokens,
		revoker: deps.Revoker,
		ready:   deps.Ready,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "HX-Request"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(s.securityHeaders)
	s.router.Use(requestMetadata)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Handler)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	authenticate := mw.Authenticate(s.tokens, s.revoker, s.service)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}

			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				r.Get("/auth/me", s.handleMe)
				r.Post("/auth/logout", s.handleLogout)

				r.Get("/files", s.handleListFiles)
				r.Get("/files/{id}", s.handleGetFile)
				r.Put("/files/{id}/columns", s.handleUpdateColumns)
				r.Delete("/files/{id}", s.handleDeleteFile)
				r.Get("/files/{id}/download", s.handleDownload)

				r.Get("/users", s.handleListUsers)
				r.Get("/users/{id}", s.handleGetUser)
				r.Put("/users/{id}", s.handleUpdateUser)
				r.Put("/users/{id}/permissions", s.handleUpdatePermissions)
				r.Delete("/users/{id}", s.handleDeleteUser)

				r.Get("/audit-log", s.handleAuditLog)
			})
		})

		// Uploads are bounded by UPLOAD_TIMEOUT in the service rather than
		// the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			if s.cfg.Rate.Enabled && s.cfg.Rate.UploadLimit > 0 {
				r.Use(mw.NewRateLimiter(s.cfg.Rate.UploadLimit).Handler)
			}
			r.Post("/files/upload", s.handleUpload)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}
