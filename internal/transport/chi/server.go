package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fuego-app/fuego/internal/domain"
	dommatch "github.com/fuego-app/fuego/internal/domain/match"
	"github.com/fuego-app/fuego/internal/identity"
	"github.com/fuego-app/fuego/internal/logger"
	"github.com/fuego-app/fuego/internal/usecase/consent"
	explainuc "github.com/fuego-app/fuego/internal/usecase/explain"
	healthuc "github.com/fuego-app/fuego/internal/usecase/health"
	matchuc "github.com/fuego-app/fuego/internal/usecase/match"
	profileuc "github.com/fuego-app/fuego/internal/usecase/profile"
)

// DefaultLimit is the page size used when a request omits limit.
const DefaultLimit = 10

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Services are the use cases behind the API. RLS may be nil when PostgREST is not configured.
type Services struct {
	Profiles *profileuc.Service
	Matches  *matchuc.Service
	Secure   *matchuc.Guarded
	RLS      *matchuc.Service
	Explain  *explainuc.Service
	Health   *healthuc.Service
}

// Options tune request handling.
type Options struct {
	DefaultLimit int
	// ChatLimiter throttles the LLM routes. Nil disables throttling.
	ChatLimiter *rate.Limiter
}

// Server serves the fuego HTTP API.
type Server struct {
	svc           Services
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(svc Services, opts Options, logger *zap.Logger) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		deniedHandler,
		sentinelHandler(dommatch.ErrInvalidCursor, http.StatusBadRequest, CodeInvalidCursor),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument),
		sentinelHandler(domain.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, CodeForbidden),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrNotConfigured, http.StatusNotImplemented, CodeNotConfigured),
		sentinelHandler(domain.ErrUpstream, http.StatusInternalServerError, CodeUpstream),
	}
	return s
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/save-profile", s.SaveProfile)
		r.Post("/find-matches-cursor", s.FindMatchesCursor)
		r.Post("/find-matches-paginated", s.FindMatchesPaginated)
		r.Post("/secure-find-matches", s.SecureFindMatches)
		r.Post("/find-matches-rls", s.FindMatchesRLS)

		r.Group(func(r chi.Router) {
			r.Use(s.chatRateLimit)
			r.Post("/match-explanation", s.MatchExplanation)
			r.Post("/chat", s.Chat)
			r.Post("/claude-chat", s.ClaudeChat)
		})
	})
}

// SaveProfile handles POST /api/save-profile.
func (s *Server) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req saveProfileRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.svc.Profiles.Save(r.Context(), profileuc.SaveInput{
		ID:                req.ID,
		Name:              req.Name,
		Likes:             req.Likes,
		IsPublic:          req.IsPublic,
		ConsentToMatching: req.ConsentToMatching,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileToResponse(p))
}

// FindMatchesCursor handles POST /api/find-matches-cursor.
func (s *Server) FindMatchesCursor(w http.ResponseWriter, r *http.Request) {
	req, cursor, ok := s.decodeMatchRequest(w, r)
	if !ok {
		return
	}

	page, err := s.svc.Matches.Query(r.Context(), req.ProfileID, s.limit(req.Limit), cursor)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// FindMatchesPaginated handles POST /api/find-matches-paginated.
func (s *Server) FindMatchesPaginated(w http.ResponseWriter, r *http.Request) {
	var req offsetRequest
	if !s.decode(w, r, &req) {
		return
	}

	matches, err := s.svc.Matches.QueryOffset(r.Context(), req.ProfileID, s.limit(req.Limit), req.Offset)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, offsetPageResponse{Matches: candidatesToResponse(matches)})
}

// SecureFindMatches handles POST /api/secure-find-matches.
// The subject defaults to the caller's own profile.
func (s *Server) SecureFindMatches(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		s.handleDomainError(w, r, consent.RequireCaller(""))
		return
	}

	req, cursor, ok := s.decodeMatchRequest(w, r)
	if !ok {
		return
	}
	subject := req.ProfileID
	if subject == "" {
		subject = caller.ID
	}

	page, err := s.svc.Secure.Query(r.Context(), caller.ID, subject, s.limit(req.Limit), cursor)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// FindMatchesRLS handles POST /api/find-matches-rls.
// Row-level security is enforced by the database under the caller's own token.
func (s *Server) FindMatchesRLS(w http.ResponseWriter, r *http.Request) {
	if s.svc.RLS == nil {
		s.handleDomainError(w, r, fmt.Errorf("supabase: %w", domain.ErrNotConfigured))
		return
	}
	if _, ok := identity.CallerFromContext(r.Context()); !ok {
		s.handleDomainError(w, r, consent.RequireCaller(""))
		return
	}

	req, cursor, ok := s.decodeMatchRequest(w, r)
	if !ok {
		return
	}

	page, err := s.svc.RLS.Query(r.Context(), req.ProfileID, s.limit(req.Limit), cursor)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) limit(requested *int) int {
	if requested == nil {
		return s.opts.DefaultLimit
	}
	return *requested
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		logger.FromContext(r.Context()).Debug("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) decodeMatchRequest(w http.ResponseWriter, r *http.Request) (matchRequest, *dommatch.Cursor, bool) {
	var req matchRequest
	if !s.decode(w, r, &req) {
		return matchRequest{}, nil, false
	}

	raw := bytes.TrimSpace(req.Cursor)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil, true
	}
	c, err := dommatch.DecodeCursor(raw)
	if err != nil {
		s.handleDomainError(w, r, err)
		return matchRequest{}, nil, false
	}
	return req, &c, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns an error message for the client without exposing upstream text.
// Client-correctable errors carry their own detail; everything else collapses to its sentinel.
func safeDomainMessage(err error) string {
	if errors.Is(err, dommatch.ErrInvalidCursor) || errors.Is(err, domain.ErrInvalidArgument) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrUnauthenticated,
		domain.ErrForbidden,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrNotConfigured,
		domain.ErrEmbeddingProviderError,
		domain.ErrUpstream,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// deniedHandler reports guard denials with the denial reason as the code.
func deniedHandler(w http.ResponseWriter, err error, _ string) bool {
	var de *consent.DeniedError
	if !errors.As(err, &de) {
		return false
	}
	status := http.StatusForbidden
	switch {
	case errors.Is(de, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(de, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	writeError(w, status, ErrorCode(de.Reason), de.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
