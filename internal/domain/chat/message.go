// Package chat holds provider-neutral chat messages.
package chat

import (
	"errors"
	"fmt"
)

// Role values accepted from clients.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrInvalidMessage signals a message with an unknown role or empty content.
var ErrInvalidMessage = errors.New("invalid chat message")

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate checks role and content.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	return nil
}

// UserPrompt wraps a single prompt as a one-message conversation.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: RoleUser, Content: prompt}}
}
