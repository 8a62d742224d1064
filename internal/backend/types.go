// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest is the body sent to the conversation endpoints.
type ChatRequest struct {
	Messages       []model.Message `json:"messages"`
	ConversationID string          `json:"conversation_id,omitempty"`
}

// =============================================================================
// STREAM ENVELOPE
// =============================================================================

// Envelope is one decoded object from a response stream. Exactly one of
// Choices, ImageURL or Error is normally populated; HistoryMetadata may ride
// along with any of them.
type Envelope struct {
	ID              string           `json:"id,omitempty"`
	Model           string           `json:"model,omitempty"`
	Created         int64            `json:"created,omitempty"`
	Object          string           `json:"object,omitempty"`
	Choices         []Choice         `json:"choices,omitempty"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`

	// Error is either a string or an object with a message field.
	Error json.RawMessage `json:"error,omitempty"`
}

// Choice groups the message fragments of one completion choice.
type Choice struct {
	Messages []model.Message `json:"messages"`
}

// HistoryMetadata is attached by the history service to identify the
// conversation a streamed answer belongs to.
type HistoryMetadata struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
	Date           string `json:"date"`
}

// CreatedAt parses Date, falling back to now.
func (h *HistoryMetadata) CreatedAt() time.Time {
	if h != nil {
		if t := parseTimestamp(h.Date); !t.IsZero() {
			return t
		}
	}
	return time.Now().UTC()
}

// Fragments returns the message fragments of the first choice.
func (e *Envelope) Fragments() []model.Message {
	if e == nil || len(e.Choices) == 0 {
		return nil
	}
	return e.Choices[0].Messages
}

// HasError reports whether the envelope carries a non-empty error field.
func (e *Envelope) HasError() bool {
	return e != nil && e.ErrorText() != ""
}

// ErrorText returns the error message, accepting both the string and the
// {"message": ...} object forms.
func (e *Envelope) ErrorText() string {
	if e == nil || len(e.Error) == 0 {
		return ""
	}
	res := gjson.ParseBytes(e.Error)
	switch {
	case res.IsObject():
		if msg := res.Get("message"); msg.Exists() {
			return msg.String()
		}
		return res.Raw
	case res.Type == gjson.Null:
		return ""
	default:
		return res.String()
	}
}

// =============================================================================
// HISTORY TYPES
// =============================================================================

// ConversationSummary is one entry of /history/list.
type ConversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// historyMessage is the message shape returned by /history/read.
type historyMessage struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"createdAt"`
}

type readResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []historyMessage `json:"messages"`
}

type conversationIDRequest struct {
	ConversationID string `json:"conversation_id"`
}

type updateRequest struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
}

type renameRequest struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

// parseTimestamp accepts the timestamp layouts the history service emits.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
