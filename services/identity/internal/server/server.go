package server

import (
	"encoding/json"
	"errors"
	"io"
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
	"bookstore/services/identity/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Limiters are optional; nil disables the limit for that route.
	SignupLimiter  *ratelimit.FixedWindowLimiter
	SigninLimiter  *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	// Alerter flags bursts of failed security events. Nil disables alerts.
	Alerter *security.AuditAlerter
}

// Server exposes HTTP endpoints for the identity service.
type Server struct {
	app           *app.App
	signupLimiter *ratelimit.FixedWindowLimiter
	signinLimiter *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies
	alerter       *security.AuditAlerter
	router        chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	s := &Server{
		app:           cfg.App,
		signupLimiter: cfg.SignupLimiter,
		signinLimiter: cfg.SigninLimiter,
		trusted:       cfg.TrustedProxies,
		alerter:       cfg.Alerter,
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
		func(next http.Handler) http.Handler { return util.WithRequestLog("identity", next) },
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
	r.Get("/.well-known/jwks.json", s.handleJWKS)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/signin", s.handleSignin)
		r.Post("/signout", s.handleSignout)
		r.Get("/me", s.handleMe)
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.signupLimiter, "signup") {
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "signup", "failure", "code", errs.CodeOf(err))
		writeErr(w, r, err)
		return
	}
	s.audit(r, "signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: userResponse{ID: user.ID, Email: user.Email}})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.signinLimiter, "signin") {
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "signin", "failure", "code", errs.CodeOf(err))
		writeErr(w, r, err)
		return
	}
	s.audit(r, "signin", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: userResponse{ID: user.ID, Email: user.Email}})
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.SignOut(r.Context(), token); err != nil {
		writeErr(w, r, err)
		return
	}
	s.audit(r, "signout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	user, err := s.app.Me(r.Context(), token)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email})
}

// allow applies a per-IP limit keyed by action.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, action string) bool {
	if limiter == nil {
		return true
	}
	ip := util.ClientIP(r, s.trusted)
	decision := limiter.Allow(r.Context(), action+"|"+ip)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	s.audit(r, action, "rate_limited")
	writeErr(w, r, errs.RateLimited("too many requests, try again later"))
	return false
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

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	code := errs.CodeValidation
	switch status {
	case http.StatusUnauthorized:
		code = errs.CodeUnauthenticated
	case http.StatusNotFound:
		code = errs.CodeNotFound
	case http.StatusMethodNotAllowed:
		code = "METHOD_NOT_ALLOWED"
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      string(code),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.StoreFailure(err)
	}
	msg := e.Message
	if e.Code == errs.CodeStoreFailure {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, e.HTTPStatus(), errorResponse{
		Error:     msg,
		Code:      string(e.Code),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}
