// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the stream decoder,
// the chat session and the history store.
//
// # Key Types
//
//   - Conversation: Titled, ordered list of messages kept by the history service
//   - Message: Single message with role, content, and date
//   - Citation: Retrieved document chunk carried by a tool message
//   - ModelType: Typed selection between the text and image models
//   - Role: Message role enumeration (user, assistant, tool, error, image)
//
// # Usage
//
//	conv := model.NewConversation(model.NewID(), "Quarterly report", time.Now())
//	conv.Append(model.NewUserMessage("Summarize the Q3 results"))
//
//	for _, c := range model.ParseCitations(toolMsg) {
//	    fmt.Println(c.DisplayTitle())
//	}
package model
