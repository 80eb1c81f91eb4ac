// Package anthropic adapts the Claude messages API for streamed and single-shot completions.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fuego-app/fuego/internal/domain"
	"github.com/fuego-app/fuego/internal/domain/chat"
	"github.com/fuego-app/fuego/internal/relay"
	"github.com/fuego-app/fuego/internal/transport/upstream"
)

// Config holds the messages API settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Version   string
	MaxTokens int
}

// Client talks to the messages endpoint.
type Client struct {
	cfg    Config
	client *upstream.Client
}

// New creates a Claude client sending through client.
func New(cfg Config, client *upstream.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: client}
}

// Name identifies the provider in metrics.
func (c *Client) Name() string { return "anthropic" }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Stream opens a streamed completion. Claude has no end sentinel; the stream ends at EOF.
func (c *Client) Stream(ctx context.Context, messages []chat.Message) (relay.Upstream, error) {
	resp, err := c.post(ctx, c.request(messages, true))
	if err != nil {
		return relay.Upstream{}, fmt.Errorf("open claude stream: %w", err)
	}
	return relay.Upstream{Body: resp.Body, Decode: DecodeEvent}, nil
}

// Complete returns the text of a single completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, c.request(chat.UserPrompt(prompt), false))
	if err != nil {
		return "", fmt.Errorf("claude completion: %w", err)
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode claude response: %v: %w", err, domain.ErrUpstream)
	}
	for _, block := range out.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("claude response has no text content: %w", domain.ErrUpstream)
}

// request moves system turns into the top-level system field.
func (c *Client) request(messages []chat.Message, stream bool) messagesRequest {
	req := messagesRequest{Model: c.cfg.Model, MaxTokens: c.cfg.MaxTokens, Stream: stream}
	var system []string
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

func (c *Client) post(ctx context.Context, req messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}
	resp, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped by upstream.Client
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.cfg.APIKey)
		httpReq.Header.Set("anthropic-version", c.cfg.Version)
		return httpReq, nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	return resp, nil
}
