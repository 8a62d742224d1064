// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jeranaias/groundchat/internal/backend"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrEmptyQuestion is returned by Submit for blank input.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrBusy is returned while an answer is being generated.
	ErrBusy = errors.New("an answer is still being generated")

	// ErrStopped is the cancellation cause of requests ended by StopGenerating.
	ErrStopped = errors.New("generation stopped by user")

	// ErrConversationNotFound is returned when the current conversation is
	// no longer in the store.
	ErrConversationNotFound = errors.New("conversation not found")
)

// =============================================================================
// USER-FACING TEXT
// =============================================================================

// DefaultProductName is the assistant name used in content-policy notices.
const DefaultProductName = "IDSGPT"

const (
	msgGeneric          = "An error occurred. Please try again. If the problem persists, please contact the site administrator."
	msgTimeout          = "Timed out, Please try again"
	msgTooLong          = "Please reduce the length of the messages."
	msgGenerationFailed = "There was an error generating a response. Chat history can't be saved at this time. If the problem persists, please contact the site administrator."
	msgFlushFailed      = "An error occurred. Answers can't be saved at this time. If the problem persists, please contact the site administrator."
	msgHistoryDisabled  = "Chat history is not enabled"
	msgClearFailedTitle = "Error clearing current chat"
	msgClearFailedBody  = "Please try again. If the problem persists, please contact the site administrator."
	msgAnswerFailed     = "Sorry, answer generation has failed. "
)

const (
	safetyMarker       = "safety system"
	reduceLengthMarker = "Please reduce the length"
)

// safetyMessage is shown when the backend's content filter refused a request.
func safetyMessage(product string) string {
	if product == "" {
		product = DefaultProductName
	}
	return "The task failed as a result of our safety system. This is an experimental feature of " + product +
		" and the system may have incorrectly rejected your request. Please try again."
}

// errorEnvelopeText renders the error carried by a stream envelope.
func errorEnvelopeText(errText, product string) string {
	if strings.Contains(errText, safetyMarker) {
		return safetyMessage(product)
	}
	return msgAnswerFailed + errText
}

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

// FailureKind classifies why a request did not complete.
type FailureKind int

const (
	FailureNone FailureKind = iota
	AbortedByUser
	NetworkFailure
	TimeoutFailure
	PayloadTooLarge
	ContentPolicyRefusal
	HistoryServiceUnavailable
	DecodeNoise

	// GenerationFailed is a rejected persisted-mode request that fits no
	// narrower kind.
	GenerationFailed
)

// String returns a short identifier for logs.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case AbortedByUser:
		return "aborted"
	case NetworkFailure:
		return "network"
	case TimeoutFailure:
		return "timeout"
	case PayloadTooLarge:
		return "payload_too_large"
	case ContentPolicyRefusal:
		return "content_policy"
	case HistoryServiceUnavailable:
		return "history_unavailable"
	case DecodeNoise:
		return "decode_noise"
	case GenerationFailed:
		return "generation_failed"
	default:
		return "unknown"
	}
}

// Message returns the text shown to the user for this kind of failure.
// AbortedByUser and DecodeNoise are never shown and return "".
func (k FailureKind) Message(product string) string {
	switch k {
	case TimeoutFailure:
		return msgTimeout
	case PayloadTooLarge:
		return msgTooLong
	case ContentPolicyRefusal:
		return safetyMessage(product)
	case GenerationFailed:
		return msgGenerationFailed
	case HistoryServiceUnavailable:
		return msgFlushFailed
	case AbortedByUser, DecodeNoise, FailureNone:
		return ""
	default:
		return msgGeneric
	}
}

// classifyFailure maps a failed request onto a FailureKind using the HTTP
// status, the response body and the transport error, whichever are known.
func classifyFailure(status int, body string, err error) FailureKind {
	switch {
	case errors.Is(err, ErrStopped):
		return AbortedByUser
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return TimeoutFailure
	case backend.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return TimeoutFailure
	}

	text := body
	if text == "" && err != nil {
		text = err.Error()
	}
	switch {
	case strings.Contains(text, reduceLengthMarker):
		return PayloadTooLarge
	case strings.Contains(text, safetyMarker):
		return ContentPolicyRefusal
	default:
		return NetworkFailure
	}
}

// =============================================================================
// BANNER
// =============================================================================

// Banner is a dismissible notice that is not part of the conversation.
type Banner struct {
	Title    string
	Subtitle string
}
