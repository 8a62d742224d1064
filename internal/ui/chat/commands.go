// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/groundchat/internal/chat"
)

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// These run session operations off the Bubble Tea loop. The session publishes
// snapshots while they run, so each command only reports the final outcome.

// AskCmd submits question and waits for the answer.
func AskCmd(ctx context.Context, sess *chat.Session, question string) tea.Cmd {
	return func() tea.Msg {
		req, err := sess.Submit(ctx, question)
		if err != nil {
			return AnswerMsg{Err: err}
		}
		return AnswerMsg{Result: req.Wait()}
	}
}

// RefreshHistoryCmd probes the history service and loads the first page.
func RefreshHistoryCmd(ctx context.Context, sess *chat.Session) tea.Cmd {
	return func() tea.Msg {
		status, err := sess.RefreshHistory(ctx)
		return HistoryStatusMsg{Status: status, Err: err}
	}
}

// LoadMoreCmd loads the next page of conversations.
func LoadMoreCmd(ctx context.Context, sess *chat.Session) tea.Cmd {
	return func() tea.Msg {
		store := sess.Store()
		if store == nil {
			return HistoryPageMsg{}
		}
		added, err := store.LoadMore(ctx)
		return HistoryPageMsg{Added: added, Err: err}
	}
}

// OpenConversationCmd makes a stored conversation current.
func OpenConversationCmd(ctx context.Context, sess *chat.Session, id string) tea.Cmd {
	return func() tea.Msg {
		conv, err := sess.SelectConversation(ctx, id)
		return ConversationMsg{Conversation: conv, Err: err}
	}
}

// DeleteConversationCmd deletes a stored conversation. Deleting the current
// conversation also starts a new chat.
func DeleteConversationCmd(ctx context.Context, sess *chat.Session, id string) tea.Cmd {
	return func() tea.Msg {
		store := sess.Store()
		if store == nil {
			return DeletedMsg{ID: id}
		}
		current := store.CurrentID() == id
		if err := store.Delete(ctx, id); err != nil {
			return DeletedMsg{ID: id, Err: err}
		}
		if current {
			if err := sess.NewChat(); err != nil {
				return DeletedMsg{ID: id, Err: err}
			}
		}
		return DeletedMsg{ID: id}
	}
}

// ClearChatCmd empties the current conversation.
func ClearChatCmd(ctx context.Context, sess *chat.Session) tea.Cmd {
	return func() tea.Msg {
		return ClearedMsg{Err: sess.ClearChat(ctx)}
	}
}
