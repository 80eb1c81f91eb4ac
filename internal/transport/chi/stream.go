package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/domain"
	"github.com/fuego-app/fuego/internal/logger"
	"github.com/fuego-app/fuego/internal/relay"
	explainuc "github.com/fuego-app/fuego/internal/usecase/explain"
)

// sseSink writes relay events as server-sent events. Headers go out with the
// first event, so a failure before it can still be reported as a JSON error.
type sseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

func (s *sseSink) open() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// Emit writes one `data:` event and flushes it.
func (s *sseSink) Emit(ev relay.Event) error {
	s.open()
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// MatchExplanation handles POST /api/match-explanation.
func (s *Server) MatchExplanation(w http.ResponseWriter, r *http.Request) {
	var req explanationRequest
	if !s.decode(w, r, &req) {
		return
	}
	pair := explainuc.Pair{
		AName:  req.ProfileAName,
		ALikes: req.ProfileALikes,
		BName:  req.ProfileBName,
		BLikes: req.ProfileBLikes,
	}

	s.stream(w, r, func(ctx context.Context, sink relay.Sink) error {
		return s.svc.Explain.Explain(ctx, pair, sink)
	})
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	s.stream(w, r, func(ctx context.Context, sink relay.Sink) error {
		return s.svc.Explain.Chat(ctx, req.Messages, sink)
	})
}

// ClaudeChat handles POST /api/claude-chat.
func (s *Server) ClaudeChat(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.svc.Explain.Complete(r.Context(), req.Prompt)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{Response: out})
}

// stream runs a relay into an SSE response. Once an event has been written the
// status line is gone, so later failures only truncate the stream.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, run func(context.Context, relay.Sink) error) {
	sink := newSSESink(w)
	err := run(r.Context(), sink)
	switch {
	case err == nil:
		sink.open()
	case !sink.started:
		s.handleDomainError(w, r, err)
	default:
		logger.FromContext(r.Context()).Warn("stream truncated", zap.Error(err))
	}
}

// chatRateLimit rejects LLM requests beyond the configured rate.
func (s *Server) chatRateLimit(next http.Handler) http.Handler {
	if s.opts.ChatLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.ChatLimiter.Allow() {
			s.handleDomainError(w, r, fmt.Errorf("chat: %w", domain.ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
