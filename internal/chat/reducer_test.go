// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/model"
)

func fragEnv(frags ...model.Message) *backend.Envelope {
	return &backend.Envelope{Choices: []backend.Choice{{Messages: frags}}}
}

func roles(msgs []model.Message) []model.Role {
	out := make([]model.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestTurn_ConcatenatesAssistantFragments(t *testing.T) {
	user := model.NewUserMessage("hi")
	turn := NewTurn(nil, user, "", model.RoleAssistant)

	turn.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "Hel"}))
	visible := turn.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "lo"}))

	require.Len(t, visible, 2)
	assert.Equal(t, user, visible[0])
	assert.Equal(t, "Hello", visible[1].Content)
	assert.Equal(t, 2, turn.Applied())
}

func TestTurn_AssistantIdentityIsStable(t *testing.T) {
	turn := NewTurn(nil, model.NewUserMessage("hi"), "", model.RoleAssistant)

	first := turn.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "a"}))
	second := turn.Apply(fragEnv(model.Message{ID: "other", Role: model.RoleAssistant, Content: "b"}))

	assert.NotEmpty(t, first[1].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.Equal(t, first[1].Date, second[1].Date)
}

func TestTurn_LatestToolMessageWins(t *testing.T) {
	turn := NewTurn(nil, model.NewUserMessage("hi"), "", model.RoleAssistant)

	turn.Apply(fragEnv(model.Message{Role: model.RoleTool, Content: `{"citations":[]}`}))
	turn.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "answer"}))
	visible := turn.Apply(fragEnv(model.Message{Role: model.RoleTool, Content: `{"citations":[{"content":"x"}]}`}))

	assert.Equal(t, []model.Role{model.RoleUser, model.RoleTool, model.RoleAssistant}, roles(visible))
	assert.Contains(t, visible[1].Content, `"x"`)
}

func TestTurn_UserInsertedOnlyForNewConversations(t *testing.T) {
	prior := []model.Message{model.NewUserMessage("earlier"), model.NewAssistantMessage("reply")}
	user := model.NewUserMessage("now")

	fresh := NewTurn(prior, user, "", model.RoleError)
	assert.Len(t, fresh.Visible(), 3)

	existing := NewTurn(model.Concat(prior, user), user, "c1", model.RoleError)
	visible := existing.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "ok"}))
	require.Len(t, visible, 4)
	assert.Equal(t, "now", visible[2].Content)
	assert.Equal(t, "ok", visible[3].Content)
}

func TestTurn_DoesNotAliasPrior(t *testing.T) {
	prior := []model.Message{model.NewUserMessage("earlier")}
	turn := NewTurn(prior, model.NewUserMessage("now"), "", model.RoleAssistant)

	prior[0].Content = "mutated"
	visible := turn.Visible()
	assert.Equal(t, "earlier", visible[0].Content)

	visible[0].Content = "again"
	assert.Equal(t, "earlier", turn.Visible()[0].Content)
}

func TestTurn_ImageEnvelope(t *testing.T) {
	turn := NewTurn(nil, model.NewUserMessage("draw a cat"), "", model.RoleAssistant)

	visible := turn.Apply(&backend.Envelope{ImageURL: "https://img/cat.png"})

	require.Len(t, visible, 2)
	assert.Equal(t, model.RoleImage, visible[1].Role)
	assert.Equal(t, "https://img/cat.png", visible[1].Content)
	assert.True(t, turn.Produced())
}

func TestTurn_ErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		errorRole model.Role
		want      string
	}{
		{
			name:      "generic ephemeral",
			raw:       `"model overloaded"`,
			errorRole: model.RoleAssistant,
			want:      "Sorry, answer generation has failed. model overloaded",
		},
		{
			name:      "object form persisted",
			raw:       `{"message":"quota exceeded"}`,
			errorRole: model.RoleError,
			want:      "Sorry, answer generation has failed. quota exceeded",
		},
		{
			name:      "safety",
			raw:       `"The response was filtered by our safety system"`,
			errorRole: model.RoleError,
			want:      safetyMessage("Acme"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := NewTurn(nil, model.NewUserMessage("q"), "", tt.errorRole).WithProductName("Acme")
			visible := turn.Apply(&backend.Envelope{Error: json.RawMessage(tt.raw)})

			require.Len(t, visible, 2)
			assert.Equal(t, tt.errorRole, visible[1].Role)
			assert.Equal(t, tt.want, visible[1].Content)
		})
	}
}

func TestTurn_CapturesMetadata(t *testing.T) {
	turn := NewTurn(nil, model.NewUserMessage("q"), "", model.RoleError)
	assert.Nil(t, turn.Metadata())

	turn.Apply(&backend.Envelope{HistoryMetadata: &backend.HistoryMetadata{ConversationID: "c9", Title: "T"}})
	turn.Apply(fragEnv(model.Message{Role: model.RoleAssistant, Content: "x"}))

	require.NotNil(t, turn.Metadata())
	assert.Equal(t, "c9", turn.Metadata().ConversationID)
}

func TestTurn_NilEnvelope(t *testing.T) {
	turn := NewTurn(nil, model.NewUserMessage("q"), "", model.RoleAssistant)
	assert.Len(t, turn.Apply(nil), 1)
	assert.Equal(t, 0, turn.Applied())
	assert.False(t, turn.Produced())
}
