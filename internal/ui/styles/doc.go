// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lip gloss styles of the groundchat TUI.

All colors are lipgloss.AdaptiveColor values so the same theme works on light
and dark terminals.

# Usage

	theme := styles.NewTheme()
	fmt.Println(theme.RoleLabel(model.RoleAssistant))
	fmt.Println(theme.Status(history.StatusWorking))
*/
package styles
