// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/model"
	"github.com/jeranaias/groundchat/internal/util"
)

// View renders the chat view.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	if banner := m.bannerView(); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}

	switch {
	case m.showHelp:
		b.WriteString(m.fill(m.help.FullHelpView(m.keys.FullHelp())))
	case m.historyOpen:
		b.WriteString(m.fill(m.historyView()))
	default:
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(m.theme.Notice.Render(util.TruncateWidth(m.notice, m.width)))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.Input.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusView())
	return b.String()
}

// fill pads or cuts content to the viewport height so the input stays put.
func (m Model) fill(content string) string {
	lines := strings.Split(content, "\n")
	h := m.viewport.Height
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// HEADER, BANNER AND STATUS BAR
// =============================================================================

func (m Model) headerView() string {
	brand := m.theme.HeaderBrand.Render(m.opts.ProductName)
	info := m.theme.HeaderInfo.Render(m.snap.Model.Info().Name)
	if m.snap.ConversationID != "" {
		if conv, ok := m.currentConversation(); ok && conv.Title != "" {
			info += m.theme.HeaderInfo.Render("  " + util.TruncateWidth(conv.Title, 40))
		}
	}
	status := m.theme.Status(m.status)

	gap := m.width - lipgloss.Width(brand) - lipgloss.Width(info) - lipgloss.Width(status) - 6
	if gap < 1 {
		gap = 1
	}
	line := brand + "  " + info + strings.Repeat(" ", gap) + status
	return m.theme.Header.Width(m.width).Render(line)
}

func (m Model) currentConversation() (*model.Conversation, bool) {
	store := m.session.Store()
	if store == nil {
		return nil, false
	}
	return store.Current()
}

// bannerView renders the session banner, if any.
func (m Model) bannerView() string {
	b := m.snap.Banner
	if b == nil {
		return ""
	}
	text := m.theme.BannerTitle.Render(b.Title)
	if b.Subtitle != "" {
		text += "\n" + m.theme.BannerSubtitle.Render(b.Subtitle)
	}
	text += "  " + m.theme.Muted.Render("(C-x to dismiss)")
	return m.theme.Banner.Width(m.width).Render(text)
}

func (m Model) statusView() string {
	var mode string
	if m.session.Mode() == chat.ModePersisted {
		mode = m.theme.ModePersist.Render("saved")
	} else {
		mode = m.theme.ModeEphemeral.Render("not saved")
	}
	left := mode
	if m.opts.Version != "" {
		left += m.theme.Muted.Render("  v" + m.opts.Version)
	}

	keys := m.keys.ShortHelp()
	if m.historyOpen {
		keys = m.keys.historyHelp()
	}
	right := m.help.ShortHelpView(keys)

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return m.theme.StatusBar.Render(left)
	}
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// CONVERSATION
// =============================================================================

// renderConversation renders every visible message for the viewport.
func (m Model) renderConversation() string {
	if len(m.snap.Messages) == 0 && !m.snap.ShowLoading {
		return m.emptyView()
	}

	var parts []string
	for _, msg := range m.snap.Messages {
		if r := m.renderMessage(msg); r != "" {
			parts = append(parts, r)
		}
	}
	if m.snap.ShowLoading {
		parts = append(parts, m.spinner.View()+" "+m.theme.Muted.Render("Generating answer..."))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) emptyView() string {
	lines := []string{
		m.theme.HeaderBrand.Render(m.opts.ProductName),
		"",
		"Ask a question to start. Answers cite the documents they come from.",
		m.theme.Muted.Render(fmt.Sprintf("Model: %s. %s.", m.snap.Model.Info().Name, m.snap.Model.Info().Description)),
	}
	return strings.Join(lines, "\n")
}

// renderMessage renders one message with its role heading.
func (m Model) renderMessage(msg model.Message) string {
	width := m.width - 2
	label := m.theme.RoleLabel(msg.Role)

	switch msg.Role {
	case model.RoleUser:
		return label + "\n" + m.theme.UserText.Width(width).Render(msg.Content)

	case model.RoleAssistant:
		return label + "\n" + m.markdown(msg.Content, width)

	case model.RoleTool:
		return m.renderCitations(msg)

	case model.RoleImage:
		return label + "\n" + m.theme.CitationLink.Render(msg.Content)

	case model.RoleError:
		return label + "\n" + m.theme.ErrorText.Width(width).Render(msg.Content)

	default:
		return ""
	}
}

// markdown renders text with glamour, or wraps it plainly when markdown is
// off or rendering fails.
func (m Model) markdown(text string, width int) string {
	if m.md != nil {
		if out, err := m.md.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

// renderCitations shows the sources of an answer: one line of titles, or the
// full list with links when citations are expanded.
func (m Model) renderCitations(msg model.Message) string {
	cites := model.ParseCitations(msg)
	if len(cites) == 0 {
		return ""
	}
	label := m.theme.RoleLabel(model.RoleTool)

	if !m.showCitations {
		titles := make([]string, len(cites))
		for i, c := range cites {
			titles[i] = fmt.Sprintf("[%d] %s", i+1, c.DisplayTitle())
		}
		line := util.TruncateWidth(strings.Join(titles, "  "), m.width-lipgloss.Width(label)-2)
		return label + " " + m.theme.Muted.Render(line)
	}

	lines := []string{label}
	for i, c := range cites {
		line := fmt.Sprintf("  [%d] %s", i+1, m.theme.CitationTitle.Render(util.TruncateWidth(c.DisplayTitle(), 60)))
		if c.Viewable() {
			line += "  " + m.theme.CitationLink.Render(c.URL)
		} else {
			line += "  " + m.theme.Muted.Render("(not viewable)")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// HISTORY PANE
// =============================================================================

func (m Model) historyView() string {
	store := m.session.Store()
	lines := []string{m.theme.HistoryTitle.Render("Conversations")}
	if store == nil {
		return strings.Join(lines, "\n")
	}

	convs := store.Conversations()
	if len(convs) == 0 {
		lines = append(lines, m.theme.Muted.Render("No conversations yet."))
	}

	// Keep the cursor on screen.
	visible := m.viewport.Height - 3
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	current := store.CurrentID()
	titleWidth := m.width - 28
	if titleWidth < 10 {
		titleWidth = 10
	}
	for i := start; i < len(convs) && i < start+visible; i++ {
		c := convs[i]
		marker := "  "
		if c.ID == current {
			marker = m.theme.HistoryCurrent.Render("* ")
		}
		title := util.PadWidth(util.TruncateWidth(c.Title, titleWidth), titleWidth)
		date := m.theme.Muted.Render(c.CreatedAt.Local().Format("2006-01-02 15:04"))
		style := m.theme.HistoryItem
		if i == m.cursor {
			style = m.theme.HistorySelected
			marker = m.theme.HistorySelected.Render("> ")
		}
		lines = append(lines, marker+style.Render(title)+"  "+date)
	}
	return m.theme.HistoryPane.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}
