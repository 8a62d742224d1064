// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations to files people can share.
//
// # Supported Formats
//
//   - Markdown: front matter, one section per message, sources listed
//     under each answer
//   - HTML: a standalone page with embedded CSS; answers are rendered from
//     markdown and sanitized
//   - JSON: the conversation with citations decoded, for other tools
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(conv, exp, export.DefaultOptions())
//
// Tool messages are never written verbatim: their citations are attached to
// the answer that follows them.
package export
