// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/groundchat/internal/backend"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		err    error
		want   FailureKind
	}{
		{"stopped", 0, "", fmt.Errorf("read: %w", ErrStopped), AbortedByUser},
		{"gateway timeout", 504, "", nil, TimeoutFailure},
		{"request timeout", 408, "", nil, TimeoutFailure},
		{"client timeout", 0, "", &backend.ClientError{Type: backend.ErrTypeTimeout}, TimeoutFailure},
		{"deadline", 0, "", context.DeadlineExceeded, TimeoutFailure},
		{"too long body", 400, `{"error":"Please reduce the length of the messages."}`, nil, PayloadTooLarge},
		{"too long error text", 0, "", errors.New("Please reduce the length"), PayloadTooLarge},
		{"safety", 400, `{"error":"blocked by our safety system"}`, nil, ContentPolicyRefusal},
		{"plain 500", 500, "boom", nil, NetworkFailure},
		{"connection", 0, "", &backend.ClientError{Type: backend.ErrTypeConnection}, NetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyFailure(tt.status, tt.body, tt.err))
		})
	}
}

func TestFailureKind_Message(t *testing.T) {
	assert.Equal(t, msgTimeout, TimeoutFailure.Message(""))
	assert.Equal(t, msgTooLong, PayloadTooLarge.Message(""))
	assert.Equal(t, msgGenerationFailed, GenerationFailed.Message(""))
	assert.Equal(t, msgFlushFailed, HistoryServiceUnavailable.Message(""))
	assert.Equal(t, msgGeneric, NetworkFailure.Message(""))
	assert.Empty(t, AbortedByUser.Message(""))
	assert.Empty(t, DecodeNoise.Message(""))

	assert.Contains(t, ContentPolicyRefusal.Message(""), DefaultProductName)
	assert.Contains(t, ContentPolicyRefusal.Message("Acme"), "feature of Acme")
}

func TestErrorEnvelopeText(t *testing.T) {
	assert.Equal(t, msgAnswerFailed+"nope", errorEnvelopeText("nope", ""))
	assert.Equal(t, safetyMessage("X"), errorEnvelopeText("our safety system said no", "X"))
}
