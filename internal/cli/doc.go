// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the groundchat command tree.
//
// Commands are built with cobra. NewRootCmd returns a fresh tree so tests
// can run commands with their own arguments and writers; Execute runs it
// against os.Args and maps the result to an exit code.
//
// # Commands
//
//   - ask: ask one question; the answer streams to stdout
//   - chat: line-based chat with input history and slash commands
//   - tui: full-screen chat (the default on a terminal)
//   - history: list, show, rename, delete and clear saved conversations
//   - config: show, init, get and set configuration values
//   - doctor: check the configuration, backend and chat history
//   - version: build information
//
// Every command accepts --json for machine-readable output.
//
// # Exit codes
//
//	0   success
//	1   general error, or the answer failed
//	2   usage error
//	3   invalid configuration
//	5   backend unreachable
//	7   conversation not found
//	8   timeout
//	130 answer stopped with Ctrl+C
package cli
