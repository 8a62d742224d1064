// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view of the groundchat TUI.

The view is a Bubble Tea model over a *chat.Session from the session
package. Session operations run as tea.Cmd functions; the session reports
progress through snapshots, which the program delivers as SnapshotMsg. Each
snapshot carries a sequence number and the view ignores any snapshot older
than the one it shows.

# Keys

	Enter   send the question         Esc     stop the answer
	C-j     newline                   C-n     new chat
	C-l     clear the conversation    C-o     history pane
	C-s     expand sources            C-t     switch model
	C-x     dismiss the notice        F1      help
	C-c     quit
*/
package chat
