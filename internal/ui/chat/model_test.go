// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedBackend answers every request with the same stream body.
type scriptedBackend struct {
	body string
}

func (b *scriptedBackend) stream() (*backend.Stream, error) {
	return backend.NewStream(200, io.NopCloser(strings.NewReader(b.body))), nil
}

func (b *scriptedBackend) Conversation(context.Context, []model.Message) (*backend.Stream, error) {
	return b.stream()
}

func (b *scriptedBackend) Dalle(context.Context, []model.Message) (*backend.Stream, error) {
	return b.stream()
}

func (b *scriptedBackend) Generate(context.Context, []model.Message, string) (*backend.Stream, error) {
	return b.stream()
}

const answerBody = `{"choices":[{"messages":[{"role":"tool","content":"{\"citations\":[{\"title\":\"Travel Policy\",\"url\":\"https://intranet/travel\"}]}"}]}]}
{"choices":[{"messages":[{"role":"assistant","content":"Book through the portal."}]}]}
`

// downService is a history service that is configured but unreachable.
type downService struct {
	history.Service
}

func (downService) Ensure(context.Context) error {
	return errors.New("connection refused")
}

// =============================================================================
// HELPERS
// =============================================================================

func newTestModel(t *testing.T, store *history.Store) (Model, *chat.Session) {
	t.Helper()
	sess := chat.NewSession(&scriptedBackend{body: answerBody}, store, chat.Options{})
	m := New(context.Background(), sess, Options{
		UI:          config.UIConfig{Markdown: false},
		ProductName: "TestGPT",
	})
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30}), sess
}

func newSQLiteStore(t *testing.T) *history.Store {
	t.Helper()
	db, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return history.NewStore(db)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runeMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

// =============================================================================
// TESTS
// =============================================================================

func TestViewBeforeResize(t *testing.T) {
	sess := chat.NewSession(&scriptedBackend{}, nil, chat.Options{})
	m := New(context.Background(), sess, Options{})
	assert.Equal(t, "Loading...", m.View())
}

func TestEmptyConversationShowsProduct(t *testing.T) {
	m, _ := newTestModel(t, nil)
	view := m.View()
	assert.Contains(t, view, "TestGPT")
	assert.Contains(t, view, "Ask a question to start")
}

func TestStaleSnapshotsAreDropped(t *testing.T) {
	m, sess := newTestModel(t, nil)

	older := sess.Snapshot()
	newer := sess.Snapshot()
	require.Greater(t, newer.Seq, older.Seq)

	m = update(t, m, SnapshotMsg{Snapshot: newer})
	m = update(t, m, SnapshotMsg{Snapshot: older})
	assert.Equal(t, newer.Seq, m.Snapshot().Seq)
}

func TestSubmitRendersAnswer(t *testing.T) {
	m, sess := newTestModel(t, nil)

	m.input.SetValue("How do I book travel?")
	m, cmd := updateCmd(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	answer, ok := msg.(AnswerMsg)
	require.True(t, ok)
	require.NoError(t, answer.Err)
	assert.Equal(t, chat.StateCompleted, answer.Result.State)

	m = update(t, m, answer)
	m = update(t, m, SnapshotMsg{Snapshot: sess.Snapshot()})

	view := m.View()
	assert.Contains(t, view, "How do I book travel?")
	assert.Contains(t, view, "Book through the portal.")
	assert.Contains(t, view, "[1] Travel Policy")
	assert.NotContains(t, view, "https://intranet/travel")

	m = update(t, m, keyMsg(tea.KeyCtrlS))
	assert.Contains(t, m.View(), "https://intranet/travel")
}

func TestEmptySubmitDoesNothing(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m.input.SetValue("   ")
	_, cmd := updateCmd(t, m, keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
}

func TestSubmitWhileLoadingIsRefused(t *testing.T) {
	m, _ := newTestModel(t, nil)
	snap := m.Snapshot()
	snap.Seq++
	snap.Loading = true
	m = update(t, m, SnapshotMsg{Snapshot: snap})

	m.input.SetValue("second question")
	m, cmd := updateCmd(t, m, keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, "second question", m.input.Value())
	assert.Contains(t, m.Notice(), "Wait for the answer")
}

func TestAnswerNotices(t *testing.T) {
	m, _ := newTestModel(t, nil)

	m = update(t, m, AnswerMsg{Result: chat.Result{State: chat.StateAborted}})
	assert.Equal(t, "Answer stopped", m.Notice())

	m = update(t, m, AnswerMsg{Err: chat.ErrBusy})
	assert.Contains(t, m.Notice(), "Esc")

	m = update(t, m, AnswerMsg{Result: chat.Result{State: chat.StateCompleted, Err: errors.New("disk full")}})
	assert.Equal(t, "Answer not saved: disk full", m.Notice())
}

func TestNewChatEmptiesConversation(t *testing.T) {
	m, sess := newTestModel(t, nil)
	_, err := sess.Ask(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Messages())

	m = update(t, m, keyMsg(tea.KeyCtrlN))
	assert.Empty(t, sess.Messages())
	m = update(t, m, SnapshotMsg{Snapshot: sess.Snapshot()})
	assert.Contains(t, m.View(), "Ask a question to start")
}

func TestBannerShowsAndDismisses(t *testing.T) {
	m, sess := newTestModel(t, history.NewStore(downService{}))

	msg := RefreshHistoryCmd(context.Background(), sess)()
	status, ok := msg.(HistoryStatusMsg)
	require.True(t, ok)
	assert.Equal(t, history.StatusNotWorking, status.Status)

	m = update(t, m, status)
	m = update(t, m, SnapshotMsg{Snapshot: sess.Snapshot()})
	require.NotNil(t, m.Snapshot().Banner)
	assert.Contains(t, m.View(), m.Snapshot().Banner.Title)

	m = update(t, m, keyMsg(tea.KeyEsc))
	assert.Nil(t, sess.Banner())
}

func TestHistoryPaneRequiresService(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = update(t, m, HistoryStatusMsg{Status: history.StatusNotConfigured})
	m = update(t, m, keyMsg(tea.KeyCtrlO))
	assert.False(t, m.historyOpen)
	assert.Equal(t, history.StatusNotConfigured.String(), m.Notice())
}

func TestHistoryPaneOpensConversation(t *testing.T) {
	store := newSQLiteStore(t)
	m, sess := newTestModel(t, store)

	msg := RefreshHistoryCmd(context.Background(), sess)()
	m = update(t, m, msg)
	require.True(t, store.Available())

	res, err := sess.Ask(context.Background(), "How do I book travel?")
	require.NoError(t, err)
	require.Equal(t, chat.StateCompleted, res.State)
	require.NotEmpty(t, res.ConversationID)
	require.NoError(t, sess.NewChat())

	m = update(t, m, keyMsg(tea.KeyCtrlO))
	require.True(t, m.historyOpen)
	assert.Contains(t, m.View(), "Conversations")

	m, cmd := updateCmd(t, m, keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	opened, ok := cmd().(ConversationMsg)
	require.True(t, ok)
	require.NoError(t, opened.Err)
	assert.Equal(t, res.ConversationID, opened.Conversation.ID)

	m = update(t, m, opened)
	assert.False(t, m.historyOpen)
	assert.Equal(t, res.ConversationID, store.CurrentID())
	assert.NotEmpty(t, sess.Messages())
}

func TestHistoryPaneDeletesConversation(t *testing.T) {
	store := newSQLiteStore(t)
	m, sess := newTestModel(t, store)
	m = update(t, m, RefreshHistoryCmd(context.Background(), sess)())

	_, err := sess.Ask(context.Background(), "first")
	require.NoError(t, err)
	require.Len(t, store.Conversations(), 1)

	m = update(t, m, keyMsg(tea.KeyCtrlO))
	m, cmd := updateCmd(t, m, runeMsg('d'))
	require.NotNil(t, cmd)
	deleted, ok := cmd().(DeletedMsg)
	require.True(t, ok)
	require.NoError(t, deleted.Err)

	m = update(t, m, deleted)
	assert.Empty(t, store.Conversations())
	assert.Empty(t, sess.Messages(), "deleting the current conversation starts a new chat")
	assert.Equal(t, 0, m.cursor)
}

func TestCycleModel(t *testing.T) {
	m, sess := newTestModel(t, nil)
	require.Equal(t, model.ModelGPT4, sess.Model())

	m = update(t, m, keyMsg(tea.KeyCtrlT))
	assert.Equal(t, model.ModelDallE3, sess.Model())
	assert.Contains(t, m.Notice(), model.ModelDallE3.Info().Name)

	update(t, m, keyMsg(tea.KeyCtrlT))
	assert.Equal(t, model.ModelGPT4, sess.Model())
}

func TestConfigReloadAppliesUI(t *testing.T) {
	m, _ := newTestModel(t, nil)
	require.Nil(t, m.md)

	cfg := config.Default()
	cfg.UI.Markdown = true
	m = update(t, m, ConfigMsg{Config: cfg})
	assert.NotNil(t, m.md)

	m = update(t, m, ConfigMsg{Err: errors.New("bad toml")})
	assert.Contains(t, m.Notice(), "bad toml")
}

func TestQuitStopsGenerating(t *testing.T) {
	m, _ := newTestModel(t, nil)
	_, cmd := updateCmd(t, m, keyMsg(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestNextModelWraps(t *testing.T) {
	assert.Equal(t, model.ModelDallE3, nextModel(model.ModelGPT4))
	assert.Equal(t, model.ModelGPT4, nextModel(model.ModelDallE3))
}
