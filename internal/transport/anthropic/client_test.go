package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/domain/chat"
	"github.com/fuego-app/fuego/internal/relay"
	"github.com/fuego-app/fuego/internal/transport/upstream"
)

type collectSink struct {
	contents []string
}

func (s *collectSink) Emit(ev relay.Event) error {
	s.contents = append(s.contents, ev.Content)
	return nil
}

func newTestClient(url string) *Client {
	return New(Config{
		APIKey: "sk-ant", BaseURL: url, Model: "claude-test", Version: "2023-06-01", MaxTokens: 256,
	}, upstream.New(upstream.Config{Name: "anthropic-test", InitialBackoff: time.Millisecond}, zap.NewNop()))
}

func checkHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if r.URL.Path != "/messages" {
		t.Errorf("unexpected path %s", r.URL.Path)
	}
	if r.Header.Get("x-api-key") != "sk-ant" || r.Header.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("missing anthropic headers: %v", r.Header)
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkHeaders(t, r)
		var req messagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.System != "be brief" || len(req.Messages) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"event: message_start\n" +
				`data: {"type":"message_start","message":{"id":"msg_1"}}` + "\n\n" +
				"event: content_block_delta\n" +
				`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}` + "\n\n" +
				"event: content_block_delta\n" +
				`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}` + "\n\n" +
				"event: message_stop\n" +
				`data: {"type":"message_stop"}` + "\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	sink := &collectSink{}
	msgs := []chat.Message{{Role: chat.RoleSystem, Content: "be brief"}, {Role: chat.RoleUser, Content: "hello"}}

	err := relay.New(relay.DefaultConfig(c.Name()), zap.NewNop()).Run(context.Background(),
		func(ctx context.Context) (relay.Upstream, error) { return c.Stream(ctx, msgs) }, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.contents) != 2 || sink.contents[0] != "Hi" || sink.contents[1] != " there" {
		t.Errorf("expected [Hi, there], got %q", sink.contents)
	}
}

func TestStream_ErrorEventAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}` + "\n" +
				`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := relay.New(relay.DefaultConfig(c.Name()), zap.NewNop()).Run(context.Background(),
		func(ctx context.Context) (relay.Upstream, error) { return c.Stream(ctx, chat.UserPrompt("x")) },
		&collectSink{})
	if !errors.Is(err, relay.ErrAbort) {
		t.Fatalf("expected ErrAbort, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkHeaders(t, r)
		var req messagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Model != "claude-test" || req.MaxTokens != 256 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello!"}]}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Complete(context.Background(), "Say hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("expected Hello!, got %q", got)
	}
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "x")
	var se *upstream.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		want  string
		abort bool
	}{
		{"text delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`, "a", false},
		{"ping", `{"type":"ping"}`, "", false},
		{"message stop", `{"type":"message_stop"}`, "", false},
		{"error", `{"type":"error","error":{"type":"api_error","message":"boom"}}`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tc.data))
			if got != tc.want || errors.Is(err, relay.ErrAbort) != tc.abort {
				t.Errorf("DecodeEvent(%s) = %q, %v", tc.data, got, err)
			}
		})
	}
	if _, err := DecodeEvent([]byte("{")); err == nil || errors.Is(err, relay.ErrAbort) {
		t.Errorf("malformed event must be a droppable error, got %v", err)
	}
}
