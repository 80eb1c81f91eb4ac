package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/fuego-app/fuego/internal/relay"
)

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeEvent extracts text from content_block_delta events. An error event
// aborts the stream; every other event type carries no content.
func DecodeEvent(data []byte) (string, error) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return "", fmt.Errorf("decode claude event: %w", err)
	}
	switch ev.Type {
	case "content_block_delta":
		return ev.Delta.Text, nil
	case "error":
		return "", fmt.Errorf("%w: %s: %s", relay.ErrAbort, ev.Error.Type, ev.Error.Message)
	default:
		return "", nil
	}
}
