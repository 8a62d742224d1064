// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SnapshotMsg carries session state to the view. Snapshots may arrive out of
// order; the view keeps the one with the highest Seq.
type SnapshotMsg struct {
	Snapshot chat.Snapshot
}

// AnswerMsg is sent when a submitted question has finished.
type AnswerMsg struct {
	Result chat.Result
	Err    error
}

// =============================================================================
// HISTORY MESSAGES
// =============================================================================

// HistoryStatusMsg reports the result of probing the history service.
type HistoryStatusMsg struct {
	Status history.Status
	Err    error
}

// HistoryPageMsg reports a page of conversations loaded on demand.
type HistoryPageMsg struct {
	Added int
	Err   error
}

// ConversationMsg reports a conversation opened from the history pane.
type ConversationMsg struct {
	Conversation *model.Conversation
	Err          error
}

// DeletedMsg reports a deleted conversation.
type DeletedMsg struct {
	ID  string
	Err error
}

// ClearedMsg reports the result of clearing the current conversation.
type ClearedMsg struct {
	Err error
}

// =============================================================================
// CONFIG MESSAGES
// =============================================================================

// ConfigMsg carries a reloaded configuration file. Only the UI section is
// applied while the view is running.
type ConfigMsg struct {
	Config *config.Config
	Err    error
}
