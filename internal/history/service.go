// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the conversation list in memory and mirrors it to a
// history service.
package history

import (
	"context"

	"github.com/jeranaias/groundchat/internal/model"
)

// PageSize is the number of conversations returned by one List call.
const PageSize = 25

// =============================================================================
// SERVICE
// =============================================================================

// Service is the durable side of conversation history. The remote backend
// client and the local SQLite database both satisfy it.
type Service interface {
	// Ensure reports whether the service is configured and reachable.
	Ensure(ctx context.Context) error

	// List returns one page of conversations, most recent first, without messages.
	List(ctx context.Context, offset int) ([]*model.Conversation, error)

	// Read returns the messages of one conversation.
	Read(ctx context.Context, conversationID string) ([]model.Message, error)

	// Update records the conversation's messages.
	Update(ctx context.Context, conv *model.Conversation) error

	Rename(ctx context.Context, conversationID, title string) error
	Delete(ctx context.Context, conversationID string) error
	DeleteAll(ctx context.Context) error
	Clear(ctx context.Context, conversationID string) error
}

// Minter is implemented by services that assign conversation identity on the
// client side. Services without it (the remote backend) create conversations
// while generating and report them through history metadata.
type Minter interface {
	MintsConversations() bool
}

// =============================================================================
// STATUS
// =============================================================================

// Status describes the availability of the history service.
type Status int

const (
	StatusUnknown Status = iota
	StatusWorking
	StatusNotConfigured
	StatusNotWorking
)

// String returns the banner text for the status.
func (s Status) String() string {
	switch s {
	case StatusWorking:
		return "History service is configured and working"
	case StatusNotConfigured:
		return "History service is not configured"
	case StatusNotWorking:
		return "History service is not working"
	default:
		return "History status unknown"
	}
}

// Available reports whether conversations can be persisted.
func (s Status) Available() bool {
	return s == StatusWorking
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &HistoryError{Message: "conversation not found"}

// ErrUnavailable is returned when history operations are attempted without a
// working service.
var ErrUnavailable = &HistoryError{Message: "chat history is not enabled"}

// HistoryError represents a history-related error.
// It implements the error interface and can be compared using errors.Is.
type HistoryError struct {
	Message string
}

// Error implements the error interface.
func (e *HistoryError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing history errors.
func (e *HistoryError) Is(target error) bool {
	t, ok := target.(*HistoryError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
