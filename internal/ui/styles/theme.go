// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// Theme holds all the styled components of the chat view.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderInfo  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	ToolLabel      lipgloss.Style
	ErrorLabel     lipgloss.Style
	ErrorText      lipgloss.Style
	ImageLabel     lipgloss.Style
	CitationTitle  lipgloss.Style
	CitationLink   lipgloss.Style

	// ==========================================================================
	// BANNER AND NOTICES
	// ==========================================================================

	Banner         lipgloss.Style
	BannerTitle    lipgloss.Style
	BannerSubtitle lipgloss.Style
	Notice         lipgloss.Style

	// ==========================================================================
	// HISTORY PANE
	// ==========================================================================

	HistoryPane     lipgloss.Style
	HistoryTitle    lipgloss.Style
	HistoryItem     lipgloss.Style
	HistorySelected lipgloss.Style
	HistoryCurrent  lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS BAR
	// ==========================================================================

	Input         lipgloss.Style
	Spinner       lipgloss.Style
	StatusBar     lipgloss.Style
	ModePersist   lipgloss.Style
	ModeEphemeral lipgloss.Style
	Muted         lipgloss.Style

	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HeaderInfo = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.UserText = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.ToolLabel = lipgloss.NewStyle().Foreground(TextSecondary)
	t.ErrorLabel = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.ImageLabel = lipgloss.NewStyle().Bold(true).Foreground(Emerald)
	t.CitationTitle = lipgloss.NewStyle().Foreground(TextPrimary)
	t.CitationLink = lipgloss.NewStyle().Foreground(LinkColor).Underline(true)

	t.Banner = lipgloss.NewStyle().
		Background(BannerBg).
		Foreground(BannerFg).
		Padding(0, 1)
	t.BannerTitle = lipgloss.NewStyle().Bold(true)
	t.BannerSubtitle = lipgloss.NewStyle()
	t.Notice = lipgloss.NewStyle().Foreground(Amber).Italic(true)

	t.HistoryPane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AssistantBubbleBorder).
		Padding(0, 1)
	t.HistoryTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HistoryItem = lipgloss.NewStyle().Foreground(TextPrimary)
	t.HistorySelected = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.HistoryCurrent = lipgloss.NewStyle().Foreground(Emerald)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextMuted)
	t.ModePersist = lipgloss.NewStyle().Foreground(Emerald)
	t.ModeEphemeral = lipgloss.NewStyle().Foreground(Amber)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)

	t.SuccessStyle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.WarningStyle = lipgloss.NewStyle().Foreground(Amber).Bold(true)
}

// RoleLabel renders the heading shown above a message.
func (t *Theme) RoleLabel(role model.Role) string {
	name := role.DisplayName()
	switch role {
	case model.RoleUser:
		return t.UserLabel.Render(name)
	case model.RoleAssistant:
		return t.AssistantLabel.Render(name)
	case model.RoleError:
		return t.ErrorLabel.Render(name)
	case model.RoleImage:
		return t.ImageLabel.Render(name)
	default:
		return t.ToolLabel.Render(name)
	}
}

// Status renders a history status with its ASCII marker.
func (t *Theme) Status(s history.Status) string {
	switch s {
	case history.StatusWorking:
		return t.SuccessStyle.Render(StatusIndicators.Success + " history")
	case history.StatusNotConfigured:
		return t.WarningStyle.Render(StatusIndicators.Warning + " no history")
	case history.StatusNotWorking:
		return t.ErrorStyle.Render(StatusIndicators.Error + " history down")
	default:
		return t.Muted.Render(StatusIndicators.Pending + " history")
	}
}
