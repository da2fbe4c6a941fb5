package server

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookstore/internal/errs"
	"bookstore/internal/ratelimit"
	"bookstore/internal/security"
	"bookstore/internal/util"
	"bookstore/pkg/domain"
	"bookstore/services/bookstore/internal/access"
	"bookstore/services/bookstore/internal/app"
	"bookstore/services/bookstore/internal/publish"
)

const defaultMaxUploadBytes = 100 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	Access  *access.Service
	Publish *publish.Service
	App     *app.App
	// Files serves locally stored uploads under /files/. Nil when uploads
	// live in an external object store.
	Files          http.Handler
	MaxUploadBytes int64
	// UploadLimiter caps uploads per principal. Nil disables the limit.
	UploadLimiter  *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	// Alerter flags bursts of failed security events. Nil disables alerts.
	Alerter *security.AuditAlerter
}

// Server exposes the bookstore HTTP API.
type Server struct {
	access         *access.Service
	publish        *publish.Service
	app            *app.App
	files          http.Handler
	maxUploadBytes int64
	uploadLimiter  *ratelimit.FixedWindowLimiter
	trusted        *util.TrustedProxies
	alerter        *security.AuditAlerter
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Access == nil || cfg.Publish == nil || cfg.App == nil {
		return nil, errors.New("server requires access, publish and app services")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		access:         cfg.Access,
		publish:        cfg.Publish,
		app:            cfg.App,
		files:          cfg.Files,
		maxUploadBytes: maxUploadBytes,
		uploadLimiter:  cfg.UploadLimiter,
		trusted:        cfg.TrustedProxies,
		alerter:        cfg.Alerter,
	}
	s.routes(cfg.CORSOrigins)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes(corsOrigins []string) {
	r := chi.NewRouter()
	r.Use(
		util.WithRequestID,
		func(next http.Handler) http.Handler { return util.WithRequestLog("bookstore", next) },
		util.WithSecurityHeaders,
		util.WithCORS(corsOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/me", s.handleAdminMe)
		r.Method(http.MethodGet, "/authors", s.adminOnly(s.handleAdminAuthors))
		r.Method(http.MethodGet, "/books", s.adminOnly(s.handleAdminBooks))
		r.Method(http.MethodPost, "/books/publish", s.adminOnly(s.handlePublish))
	})

	r.Route("/api/author", func(r chi.Router) {
		r.Method(http.MethodGet, "/me", s.authenticated(s.handleAuthorMe))
		r.Method(http.MethodGet, "/profile", s.authenticated(s.handleGetProfile))
		r.Method(http.MethodPut, "/profile", s.authenticated(s.handleSaveProfile))
		r.Method(http.MethodGet, "/books", s.authenticated(s.handleAuthorBooks))
		r.Method(http.MethodPost, "/books", s.authenticated(s.handleCreateBook))
		r.Method(http.MethodPatch, "/books/{id}", s.authenticated(s.handleUpdateBook))
		r.Method(http.MethodDelete, "/books/{id}", s.authenticated(s.handleDeleteBook))
	})

	r.Get("/api/books", s.handlePublicBooks)
	r.Get("/api/books/{id}", s.handleGetBook)

	if s.files != nil {
		r.Handle("/files/*", util.WithImmutableCache(http.StripPrefix("/files", s.files)))
	}
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type principalHandler func(http.ResponseWriter, *http.Request, domain.Principal)

type adminHandler func(http.ResponseWriter, *http.Request, access.Admin)

// authenticated resolves the bearer token on every request.
func (s *Server) authenticated(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := bearerToken(r)
		p, err := s.access.ResolvePrincipal(r.Context(), token)
		if err != nil {
			s.audit(r, "authenticate", "failure", "reason", denialReason(err))
			writeErr(w, r, err)
			return
		}
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("principal_id", p.ID))), p)
	})
}

// adminOnly runs the full admin check before the handler touches anything.
func (s *Server) adminOnly(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := bearerToken(r)
		admin, err := s.access.AuthorizeAdmin(r.Context(), token)
		if err != nil {
			s.audit(r, "admin_access", "denied", "reason", denialReason(err))
			writeErr(w, r, err)
			return
		}
		next(w, r, admin)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		slog.Warn("security alert check failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		slog.Error("security_alert", "event", event, "outcome", outcome, "ip", ip, "count", result.Count, "threshold", result.Threshold, "window", result.Window.String())
	}
}

// allowUpload applies the per-principal upload limit.
func (s *Server) allowUpload(w http.ResponseWriter, r *http.Request, p domain.Principal) bool {
	if s.uploadLimiter == nil {
		return true
	}
	decision := s.uploadLimiter.Allow(r.Context(), "upload|"+p.ID)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.audit(r, "upload", "rate_limited", "principal_id", p.ID)
	writeErr(w, r, errs.RateLimited("too many uploads, try again later"))
	return false
}

func denialReason(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Code != errs.CodeStoreFailure {
		return e.Message
	}
	return "error"
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
