// Package explain streams LLM output for match explanations and chat.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/fuego-app/fuego/internal/domain"
	"github.com/fuego-app/fuego/internal/domain/chat"
	"github.com/fuego-app/fuego/internal/logger"
	"github.com/fuego-app/fuego/internal/relay"
)

// Service relays provider streams to clients.
type Service struct {
	streamer  ChatStreamer
	completer Completer
	relayCfg  relay.Config
}

// New creates a service. Either provider may be nil; the matching calls then report ErrNotConfigured.
func New(streamer ChatStreamer, completer Completer, relayCfg relay.Config) *Service {
	return &Service{streamer: streamer, completer: completer, relayCfg: relayCfg}
}

// Explain streams an explanation of why the pair matches.
func (s *Service) Explain(ctx context.Context, p Pair, sink relay.Sink) error {
	if strings.TrimSpace(p.AName) == "" || strings.TrimSpace(p.BName) == "" {
		return fmt.Errorf("both profile names are required: %w", domain.ErrInvalidArgument)
	}
	if p.ALikes == nil || p.BLikes == nil {
		return fmt.Errorf("both likes lists are required: %w", domain.ErrInvalidArgument)
	}
	return s.stream(ctx, chat.UserPrompt(BuildPrompt(p)), sink)
}

// Chat streams a reply to the conversation.
func (s *Service) Chat(ctx context.Context, messages []chat.Message, sink relay.Sink) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages must not be empty: %w", domain.ErrInvalidArgument)
	}
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w: %w", i, err, domain.ErrInvalidArgument)
		}
	}
	return s.stream(ctx, messages, sink)
}

// Complete returns a single non-streamed answer to prompt. The call is bounded
// by the relay timeout, like a stream.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	if s.completer == nil {
		return "", fmt.Errorf("completion provider: %w", domain.ErrNotConfigured)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required: %w", domain.ErrInvalidArgument)
	}

	if s.relayCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.relayCfg.Timeout)
		defer cancel()
	}

	out, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("complete: %w: %w", err, domain.ErrUpstream)
	}
	return out, nil
}

func (s *Service) stream(ctx context.Context, messages []chat.Message, sink relay.Sink) error {
	if s.streamer == nil {
		return fmt.Errorf("chat provider: %w", domain.ErrNotConfigured)
	}

	cfg := s.relayCfg
	cfg.Provider = s.streamer.Name()
	r := relay.New(cfg, logger.FromContext(ctx))

	err := r.Run(ctx, func(ctx context.Context) (relay.Upstream, error) {
		return s.streamer.Stream(ctx, messages)
	}, sink)
	if err != nil {
		return fmt.Errorf("relay %s: %w: %w", cfg.Provider, err, domain.ErrUpstream)
	}
	return nil
}
