// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/groundchat/internal/model"
)

// JSONExporter exports conversations to JSON with citations decoded.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter. Only the clock of opts is used;
// JSON exports always carry every field.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at,omitzero"`
	UpdatedAt time.Time     `json:"updated_at,omitzero"`
	Exported  time.Time     `json:"exported"`
	Generator string        `json:"generator"`
	Messages  []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	ID        string           `json:"id"`
	Role      model.Role       `json:"role"`
	Content   string           `json:"content"`
	Date      time.Time        `json:"date,omitzero"`
	Citations []model.Citation `json:"citations,omitempty"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	doc := jsonDocument{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Exported:  e.options.clock().UTC(),
		Generator: Generator,
	}
	for _, en := range entries(conv.Messages) {
		doc.Messages = append(doc.Messages, jsonMessage{
			ID:        en.Message.ID,
			Role:      en.Message.Role,
			Content:   en.Message.Content,
			Date:      en.Message.Date,
			Citations: en.Citations,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
