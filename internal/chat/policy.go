// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// DefaultContextWindow is how many prior messages an ephemeral request carries.
const DefaultContextWindow = 6

// Backend is the transport a session sends questions through.
// *backend.Client satisfies it.
type Backend interface {
	Conversation(ctx context.Context, messages []model.Message) (*backend.Stream, error)
	Dalle(ctx context.Context, messages []model.Message) (*backend.Stream, error)
	Generate(ctx context.Context, messages []model.Message, conversationID string) (*backend.Stream, error)
}

// =============================================================================
// MODE
// =============================================================================

// Mode says whether a request's conversation is persisted.
type Mode int

const (
	ModeEphemeral Mode = iota
	ModePersisted
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModePersisted {
		return "persisted"
	}
	return "ephemeral"
}

// =============================================================================
// POLICY
// =============================================================================

// Policy captures everything that differs between ephemeral and persisted
// requests. A policy is chosen once per submission.
type Policy interface {
	Mode() Mode

	// Payload builds the outbound message list. conv is the target
	// conversation with the user message already appended, or nil.
	Payload(prior []model.Message, conv *model.Conversation, user model.Message) []model.Message

	// Open sends the request.
	Open(ctx context.Context, payload []model.Message, conversationID string) (*backend.Stream, error)

	// ErrorRole is the role given to error envelopes in the stream.
	ErrorRole() model.Role
}

// SelectPolicy picks persisted mode when the history store is available and
// the model's conversations can be saved, and ephemeral mode otherwise.
func SelectPolicy(mt model.ModelType, store *history.Store, be Backend, window int) Policy {
	if store != nil && store.Available() && mt.Persistable() {
		return &persistedPolicy{be: be, store: store}
	}
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &ephemeralPolicy{be: be, model: mt, window: window}
}

// ephemeralPolicy sends a bounded window of recent messages and keeps nothing.
type ephemeralPolicy struct {
	be     Backend
	model  model.ModelType
	window int
}

func (p *ephemeralPolicy) Mode() Mode { return ModeEphemeral }

func (p *ephemeralPolicy) ErrorRole() model.Role { return model.RoleAssistant }

// Payload drops client-only notices from the prior messages, then sends the
// trailing window of what is left followed by the question.
func (p *ephemeralPolicy) Payload(prior []model.Message, _ *model.Conversation, user model.Message) []model.Message {
	recent := model.Trailing(model.WithoutRole(prior, model.RoleError, model.RoleImage), p.window)
	return append(recent, user)
}

func (p *ephemeralPolicy) Open(ctx context.Context, payload []model.Message, _ string) (*backend.Stream, error) {
	if p.model == model.ModelDallE3 {
		return p.be.Dalle(ctx, payload)
	}
	return p.be.Conversation(ctx, payload)
}

// persistedPolicy sends the whole conversation and lets the history service
// keep it.
type persistedPolicy struct {
	be    Backend
	store *history.Store
}

func (p *persistedPolicy) Mode() Mode { return ModePersisted }

func (p *persistedPolicy) ErrorRole() model.Role { return model.RoleError }

// Payload sends the full conversation without client-side error notices,
// or just the question when starting a new conversation.
func (p *persistedPolicy) Payload(_ []model.Message, conv *model.Conversation, user model.Message) []model.Message {
	if conv == nil {
		return []model.Message{user}
	}
	return model.WithoutRole(conv.Messages, model.RoleError)
}

// Open generates through the history service, unless conversations are
// minted locally, in which case the plain conversation endpoint is used.
func (p *persistedPolicy) Open(ctx context.Context, payload []model.Message, conversationID string) (*backend.Stream, error) {
	if p.store.MintsConversations() {
		return p.be.Conversation(ctx, payload)
	}
	return p.be.Generate(ctx, payload, conversationID)
}
