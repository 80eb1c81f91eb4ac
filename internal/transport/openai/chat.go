package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fuego-app/fuego/internal/domain/chat"
	"github.com/fuego-app/fuego/internal/relay"
	"github.com/fuego-app/fuego/internal/transport/upstream"
)

// doneSentinel terminates an OpenAI chat completion stream.
const doneSentinel = "[DONE]"

// ChatConfig holds the chat completion settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ChatStreamer opens streamed chat completions. The raw SSE body is handed to
// the relay so that line handling stays in one place.
type ChatStreamer struct {
	cfg    ChatConfig
	client *upstream.Client
}

// NewChatStreamer creates a streamer sending through client.
func NewChatStreamer(cfg ChatConfig, client *upstream.Client) *ChatStreamer {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ChatStreamer{cfg: cfg, client: client}
}

// Name identifies the provider in metrics.
func (s *ChatStreamer) Name() string { return "openai" }

// Stream posts the conversation with stream=true and returns the open body.
func (s *ChatStreamer) Stream(ctx context.Context, messages []chat.Message) (relay.Upstream, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.cfg.Model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return relay.Upstream{}, fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := s.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by upstream.Client
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		return httpReq, nil
	})
	if err != nil {
		return relay.Upstream{}, fmt.Errorf("open chat stream: %w", err)
	}

	return relay.Upstream{Body: resp.Body, Decode: DecodeDelta, Sentinel: doneSentinel}, nil
}

// DecodeDelta extracts choices[0].delta.content from one stream chunk.
func DecodeDelta(data []byte) (string, error) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", fmt.Errorf("decode chat chunk: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
