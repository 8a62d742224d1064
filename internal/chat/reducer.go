// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// TURN
// =============================================================================

// Turn folds the envelopes of one request into a visible message list.
//
// All accumulation state lives here, one Turn per request, so concurrent
// requests never share an accumulator. A Turn is not safe for concurrent use;
// the session serializes calls to Apply.
type Turn struct {
	prior          []model.Message
	user           model.Message
	conversationID string
	errorRole      model.Role
	product        string

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content   strings.Builder
	assistant *model.Message
	tool      *model.Message
	extra     *model.Message
	metadata  *backend.HistoryMetadata
	applied   int
}

// NewTurn starts a turn for user's question. When conversationID is set the
// user message is expected to be part of prior already; otherwise it is
// inserted after prior. Error envelopes become messages with errorRole.
func NewTurn(prior []model.Message, user model.Message, conversationID string, errorRole model.Role) *Turn {
	return &Turn{
		prior:          model.CloneMessages(prior),
		user:           user,
		conversationID: conversationID,
		errorRole:      errorRole,
		product:        DefaultProductName,
	}
}

// WithProductName sets the assistant name used in content-policy notices.
func (t *Turn) WithProductName(name string) *Turn {
	if name != "" {
		t.product = name
	}
	return t
}

// Apply folds one envelope into the turn and returns the new visible list.
// The returned slice is always freshly allocated.
func (t *Turn) Apply(env *backend.Envelope) []model.Message {
	if env == nil {
		return t.Visible()
	}
	t.applied++

	if env.HistoryMetadata != nil {
		t.metadata = env.HistoryMetadata
	}

	for _, frag := range env.Fragments() {
		switch frag.Role {
		case model.RoleAssistant:
			t.content.WriteString(frag.Content)
			next := stamp(frag)
			if t.assistant != nil {
				next.ID = t.assistant.ID
				next.Date = t.assistant.Date
			}
			next.Content = t.content.String()
			t.assistant = &next
		case model.RoleTool:
			next := stamp(frag)
			t.tool = &next
		}
	}

	if env.ImageURL != "" {
		img := model.NewImageMessage(env.ImageURL)
		t.extra = &img
	}
	if text := env.ErrorText(); text != "" {
		msg := model.NewMessage(t.errorRole, errorEnvelopeText(text, t.product))
		t.extra = &msg
	}

	return t.Visible()
}

// Visible returns prior, the user message (for new conversations), then the
// tool, assistant and synthetic messages produced so far.
func (t *Turn) Visible() []model.Message {
	out := make([]model.Message, 0, len(t.prior)+4)
	out = append(out, t.prior...)
	if t.conversationID == "" {
		out = append(out, t.user)
	}
	return append(out, t.Outputs()...)
}

// Outputs returns the messages this turn adds after the user message, in
// display order: tool, assistant, then any image or error message.
func (t *Turn) Outputs() []model.Message {
	var out []model.Message
	if t.tool != nil {
		out = append(out, *t.tool)
	}
	if t.assistant != nil {
		out = append(out, *t.assistant)
	}
	if t.extra != nil {
		out = append(out, *t.extra)
	}
	return out
}

// Produced reports whether any visible output has arrived.
func (t *Turn) Produced() bool {
	return t.tool != nil || t.assistant != nil || t.extra != nil
}

// Assistant returns the accumulated assistant message.
func (t *Turn) Assistant() (model.Message, bool) {
	if t.assistant == nil {
		return model.Message{}, false
	}
	return *t.assistant, true
}

// Tool returns the latest tool message.
func (t *Turn) Tool() (model.Message, bool) {
	if t.tool == nil {
		return model.Message{}, false
	}
	return *t.tool, true
}

// Metadata returns the last history metadata seen, or nil.
func (t *Turn) Metadata() *backend.HistoryMetadata {
	return t.metadata
}

// Applied returns the number of envelopes folded so far.
func (t *Turn) Applied() int {
	return t.applied
}

// stamp gives a fragment an ID and date when the backend sent none.
func stamp(m model.Message) model.Message {
	if m.ID == "" {
		m.ID = model.NewID()
	}
	if m.Date.IsZero() {
		m.Date = time.Now().UTC()
	}
	return m
}
