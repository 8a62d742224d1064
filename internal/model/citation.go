// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
)

// Citation is one retrieved document chunk referenced by an answer.
type Citation struct {
	Content   string `json:"content"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	FilePath  string `json:"filepath"`
	URL       string `json:"url"`
	Metadata  string `json:"metadata"`
	ChunkID   string `json:"chunk_id"`
	ReindexID string `json:"reindex_id"`
}

// ToolMessageContent is the JSON payload of a tool message.
type ToolMessageContent struct {
	Citations []Citation `json:"citations"`
	Intent    string     `json:"intent"`
}

// Viewable reports whether the citation URL can be opened directly.
// Blob storage links need signed access and are never opened.
func (c Citation) Viewable() bool {
	return c.URL != "" && !strings.Contains(c.URL, "blob.core")
}

// DisplayTitle returns the best available label for the citation.
func (c Citation) DisplayTitle() string {
	switch {
	case c.Title != "":
		return c.Title
	case c.FilePath != "":
		return c.FilePath
	case c.URL != "":
		return c.URL
	default:
		return "Citation"
	}
}

// ParseCitations extracts the citations carried by a tool message.
// Anything that is not a well-formed tool payload yields an empty list.
func ParseCitations(msg Message) []Citation {
	if msg.Role != RoleTool || msg.Content == "" {
		return []Citation{}
	}
	var payload ToolMessageContent
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil || payload.Citations == nil {
		return []Citation{}
	}
	return payload.Citations
}

// ParseIntent extracts the search intent carried by a tool message.
func ParseIntent(msg Message) string {
	if msg.Role != RoleTool {
		return ""
	}
	var payload ToolMessageContent
	if err := json.Unmarshal([]byte(msg.Content), &payload); err != nil {
		return ""
	}
	return payload.Intent
}
