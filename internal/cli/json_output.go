// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/groundchat/internal/model"
)

// JSONResponse is the envelope every --json command writes.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// OutputJSON runs handler and writes its result as a JSONResponse when
// jsonMode is set. Otherwise it only runs handler.
func OutputJSON(w io.Writer, jsonMode bool, command string, handler func() (any, error)) error {
	data, err := handler()
	if !jsonMode {
		return err
	}
	if err != nil {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return err
	}
	return NewJSONResponse(command, data).Write(w)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// ConversationData is one row of "history list --json".
type ConversationData struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Messages  int       `json:"messages,omitempty"`
}

func conversationData(c *model.Conversation) ConversationData {
	return ConversationData{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  len(c.Messages),
	}
}

// AskData is the result of "ask --json".
type AskData struct {
	State          string           `json:"state"`
	Mode           string           `json:"mode"`
	Model          string           `json:"model"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Answer         string           `json:"answer"`
	Citations      []model.Citation `json:"citations,omitempty"`
	Images         []string         `json:"images,omitempty"`
	Failure        string           `json:"failure,omitempty"`
	DurationMs     int64            `json:"duration_ms"`
}

// VersionData is the result of "version --json".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// ExportData is the result of "history export --json".
type ExportData struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// StatusData is the result of "history status --json".
type StatusData struct {
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Error   string `json:"error,omitempty"`
}
