// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"

	// RoleError marks a client-side failure notice. Never sent to the backend
	// in persisted mode.
	RoleError Role = "error"

	// RoleImage carries an image URL instead of text.
	RoleImage Role = "image"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Citations"
	case RoleError:
		return "Error"
	case RoleImage:
		return "Image"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation. Messages are plain values:
// copying one never aliases another message's state.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Date    time.Time `json:"date,omitzero"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      NewID(),
		Role:    role,
		Content: content,
		Date:    time.Now().UTC(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewErrorMessage creates a client-side error notice.
func NewErrorMessage(content string) Message {
	return NewMessage(RoleError, content)
}

// NewImageMessage creates a message pointing at a generated image.
func NewImageMessage(url string) Message {
	return NewMessage(RoleImage, url)
}

// IsUser returns true if this is a user message.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant message.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsTool returns true if this message carries citations.
func (m Message) IsTool() bool {
	return m.Role == RoleTool
}

// IsError returns true if this is a client-side error notice.
func (m Message) IsError() bool {
	return m.Role == RoleError
}

// NewID returns a new random identifier for messages and conversations.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// SLICE HELPERS
// =============================================================================

// CloneMessages returns a copy of msgs that shares no backing array with it.
// A nil input yields an empty, non-nil slice.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Concat builds a fresh slice holding base followed by extra.
func Concat(base []Message, extra ...Message) []Message {
	out := make([]Message, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// WithoutRole returns the messages whose role is not one of roles.
func WithoutRole(msgs []Message, roles ...Role) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		skip := false
		for _, r := range roles {
			if m.Role == r {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, m)
		}
	}
	return out
}

// Trailing returns a copy of the last n messages (all of them if fewer).
func Trailing(msgs []Message, n int) []Message {
	if n <= 0 {
		return []Message{}
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return CloneMessages(msgs)
}
