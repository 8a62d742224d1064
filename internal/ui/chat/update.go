// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/model"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.setRenderer()
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		if msg.Snapshot.Seq <= m.snap.Seq {
			return m, nil
		}
		bannerChanged := (msg.Snapshot.Banner == nil) != (m.snap.Banner == nil)
		m.snap = msg.Snapshot
		if bannerChanged {
			m.layout()
		}
		m.refresh()
		return m, nil

	case AnswerMsg:
		m.handleAnswer(msg)
		return m, nil

	case HistoryStatusMsg:
		m.status = msg.Status
		if msg.Err != nil && msg.Status.Available() {
			m.setNotice("Could not load conversations: " + msg.Err.Error())
		}
		return m, nil

	case HistoryPageMsg:
		switch {
		case msg.Err != nil:
			m.setNotice("Could not load more conversations: " + msg.Err.Error())
		case msg.Added == 0:
			m.setNotice("No more conversations")
		}
		return m, nil

	case ConversationMsg:
		if msg.Err != nil {
			m.setNotice("Could not open conversation: " + msg.Err.Error())
			return m, nil
		}
		m.historyOpen = false
		m.setNotice("Opened " + msg.Conversation.Title)
		m.viewport.GotoBottom()
		return m, nil

	case DeletedMsg:
		if msg.Err != nil {
			m.setNotice("Could not delete conversation: " + msg.Err.Error())
			return m, nil
		}
		m.clampCursor()
		return m, nil

	case ClearedMsg:
		// Service failures raise a session banner.
		if errors.Is(msg.Err, chat.ErrBusy) {
			m.setNotice("Wait for the answer to finish")
		}
		return m, nil

	case ConfigMsg:
		if msg.Err != nil {
			m.setNotice("Config reload failed: " + msg.Err.Error())
			return m, nil
		}
		m.opts.UI = msg.Config.UI
		m.setRenderer()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.ShowLoading {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.session.StopGenerating()
		return m, tea.Quit
	}
	if m.showHelp {
		m.showHelp = false
		m.layout()
		return m, nil
	}
	if m.historyOpen {
		return m.handleHistoryKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Stop):
		if m.session.StopGenerating() > 0 {
			m.setNotice("Stopping...")
		} else if m.snap.Banner != nil {
			m.session.DismissBanner()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		question := strings.TrimSpace(m.input.Value())
		if question == "" {
			return m, nil
		}
		if m.snap.Loading {
			m.setNotice("Wait for the answer or press Esc to stop it")
			return m, nil
		}
		m.input.Reset()
		m.setNotice("")
		return m, AskCmd(m.ctx, m.session, question)

	case key.Matches(msg, m.keys.NewChat):
		if err := m.session.NewChat(); err != nil {
			m.setNotice("Wait for the answer to finish")
		} else {
			m.setNotice("")
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		return m, ClearChatCmd(m.ctx, m.session)

	case key.Matches(msg, m.keys.History):
		store := m.session.Store()
		if store == nil || !store.Available() {
			m.setNotice(m.status.String())
			return m, nil
		}
		m.historyOpen = true
		m.cursor = 0
		for i, c := range store.Conversations() {
			if c.ID == store.CurrentID() {
				m.cursor = i
				break
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Citations):
		m.showCitations = !m.showCitations
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.CycleModel):
		if m.snap.Loading {
			m.setNotice("Wait for the answer to finish")
			return m, nil
		}
		next := nextModel(m.session.Model())
		m.session.SetModel(next)
		m.setNotice(fmt.Sprintf("Model: %s (%s)", next.Info().Name, m.session.Mode()))
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		m.session.DismissBanner()
		m.setNotice("")
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.session.Store().Conversations()
	switch {
	case key.Matches(msg, m.keys.Close):
		m.historyOpen = false
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(convs) {
			if m.snap.Loading {
				m.setNotice("Wait for the answer to finish")
				return m, nil
			}
			return m, OpenConversationCmd(m.ctx, m.session, convs[m.cursor].ID)
		}
	case key.Matches(msg, m.keys.Delete):
		if m.cursor < len(convs) {
			return m, DeleteConversationCmd(m.ctx, m.session, convs[m.cursor].ID)
		}
	case key.Matches(msg, m.keys.More):
		return m, LoadMoreCmd(m.ctx, m.session)
	}
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) handleAnswer(msg AnswerMsg) {
	switch {
	case errors.Is(msg.Err, chat.ErrBusy):
		m.setNotice("Wait for the answer or press Esc to stop it")
	case msg.Err != nil:
		m.setNotice(msg.Err.Error())
	case msg.Result.State == chat.StateAborted:
		m.setNotice("Answer stopped")
	case msg.Result.Err != nil && msg.Result.State == chat.StateCompleted && msg.Result.Failure == chat.FailureNone:
		m.setNotice("Answer not saved: " + msg.Result.Err.Error())
	}
}

// setNotice changes the one-line notice above the input.
func (m *Model) setNotice(text string) {
	had := m.notice != ""
	m.notice = text
	if had != (text != "") {
		m.layout()
	}
}

func (m *Model) clampCursor() {
	store := m.session.Store()
	if store == nil {
		m.cursor = 0
		return
	}
	if n := len(store.Conversations()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// nextModel cycles through the registered models in ModelIDs order.
func nextModel(current model.ModelType) model.ModelType {
	ids := model.ModelIDs()
	for i, id := range ids {
		if id != current.Info().ID {
			continue
		}
		next, err := model.ParseModelType(ids[(i+1)%len(ids)])
		if err == nil {
			return next
		}
	}
	return current
}
