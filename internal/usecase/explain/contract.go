package explain

import (
	"context"

	"github.com/fuego-app/fuego/internal/domain/chat"
	"github.com/fuego-app/fuego/internal/relay"
)

// ChatStreamer opens a streaming chat completion with a provider.
type ChatStreamer interface {
	Name() string
	Stream(ctx context.Context, messages []chat.Message) (relay.Upstream, error)
}

// Completer runs a single non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
