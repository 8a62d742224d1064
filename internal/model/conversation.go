// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"
)

// TitleMaxRunes bounds titles derived from the first user message.
const TitleMaxRunes = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a titled, ordered list of messages mirrored to the
// history service.
//
// Conversations are treated as values by the store: callers receive copies
// from Clone and hand back replacements rather than mutating shared state.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Messages  []Message `json:"messages"`
}

// NewConversation creates a conversation with the given ID and title.
func NewConversation(id, title string, createdAt time.Time) *Conversation {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Messages:  []Message{},
	}
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	c.Messages = Concat(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

// FirstUserMessage returns the first user message, or false if there is none.
func (c *Conversation) FirstUserMessage() (Message, bool) {
	for _, m := range c.Messages {
		if m.IsUser() && m.Content != "" {
			return m, true
		}
	}
	return Message{}, false
}

// ClearHistory removes all messages but keeps identity and title.
func (c *Conversation) ClearHistory() {
	c.Messages = []Message{}
	c.UpdatedAt = time.Now().UTC()
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = CloneMessages(c.Messages)
	return &clone
}

// TitleFrom derives a conversation title from message text: a single line,
// truncated on rune boundaries to TitleMaxRunes.
func TitleFrom(content string) string {
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.TrimSpace(content)
	if content == "" {
		return "New conversation"
	}
	runes := []rune(content)
	if len(runes) > TitleMaxRunes {
		content = string(runes[:TitleMaxRunes-3]) + "..."
	}
	return content
}
