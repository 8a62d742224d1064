// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/ui/styles"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Options configures the chat view.
type Options struct {
	UI          config.UIConfig
	ProductName string
	Version     string
}

// Model is the Bubble Tea model for the chat view. It never changes session
// state from View; every change goes through the session, which answers with
// a snapshot.
type Model struct {
	ctx     context.Context
	session *chat.Session
	opts    Options

	theme *styles.Theme
	keys  KeyMap
	help  help.Model

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	md       *glamour.TermRenderer

	width  int
	height int
	ready  bool

	// Latest snapshot and history status.
	snap   chat.Snapshot
	status history.Status

	// History pane.
	historyOpen bool
	cursor      int

	showHelp      bool
	showCitations bool
	notice        string
}

// New creates a chat view bound to sess.
func New(ctx context.Context, sess *chat.Session, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j", "alt+enter")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := styles.NewTheme()
	sp.Style = theme.Spinner

	if opts.ProductName == "" {
		opts.ProductName = chat.DefaultProductName
	}

	return Model{
		ctx:      ctx,
		session:  sess,
		opts:     opts,
		theme:    theme,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(0, 0),
		input:    ta,
		spinner:  sp,
		snap:     sess.Snapshot(),
		status:   history.StatusUnknown,
	}
}

// Init starts the cursor blink and spinner and probes the history service.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		RefreshHistoryCmd(m.ctx, m.session),
	)
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	inputHeight  = 3
	headerHeight = 1
	statusHeight = 1
)

// layout sizes the viewport and input for the current window.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	m.input.SetWidth(m.width - 2)

	used := headerHeight + statusHeight + inputHeight + 2
	if b := m.bannerView(); b != "" {
		used += strings.Count(b, "\n") + 1
	}
	if m.notice != "" {
		used++
	}
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.ready = true
}

// setRenderer rebuilds the markdown renderer for the current width and
// UI settings. Markdown off leaves md nil.
func (m *Model) setRenderer() {
	m.md = nil
	if !m.opts.UI.Markdown || m.width == 0 {
		return
	}
	wrap := m.width - 4
	if m.opts.UI.WordWrap > 0 && m.opts.UI.WordWrap < wrap {
		wrap = m.opts.UI.WordWrap
	}
	r, err := glamour.NewTermRenderer(glamourStyle(m.opts.UI.GlamourStyle), glamour.WithWordWrap(wrap))
	if err != nil {
		m.notice = "Markdown disabled: " + err.Error()
		return
	}
	m.md = r
}

func glamourStyle(name string) glamour.TermRendererOption {
	switch strings.ToLower(name) {
	case "", "auto":
		if termenv.HasDarkBackground() {
			return glamour.WithStandardStyle("dark")
		}
		return glamour.WithStandardStyle("light")
	default:
		return glamour.WithStylePath(name)
	}
}

// refresh re-renders the conversation into the viewport, following the
// bottom when the view was already there.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom() || m.snap.Loading
	m.viewport.SetContent(m.renderConversation())
	if follow {
		m.viewport.GotoBottom()
	}
}

// Snapshot returns the snapshot the view currently shows.
func (m Model) Snapshot() chat.Snapshot {
	return m.snap
}

// Notice returns the transient status line.
func (m Model) Notice() string {
	return m.notice
}
