// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// HISTORY API
// =============================================================================

// Ensure checks that the history service is configured and working.
// GET /history/ensure answers 404 when the service is not configured.
func (c *Client) Ensure(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodGet, "/history/ensure", nil, nil)
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) && ce.StatusCode == http.StatusNotFound {
		return &ClientError{
			Type:       ErrTypeNotConfigured,
			StatusCode: ce.StatusCode,
			Message:    "chat history is not configured",
			Body:       ce.Body,
		}
	}
	return err
}

// List returns one page of conversations, most recent first. Messages are
// not loaded.
// GET /history/list?offset=N
func (c *Client) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	var summaries []ConversationSummary
	path := "/history/list?offset=" + strconv.Itoa(offset)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &summaries); err != nil {
		return nil, err
	}

	out := make([]*model.Conversation, 0, len(summaries))
	for _, s := range summaries {
		conv := model.NewConversation(s.ID, s.Title, parseTimestamp(s.CreatedAt))
		if t := parseTimestamp(s.UpdatedAt); !t.IsZero() {
			conv.UpdatedAt = t
		}
		out = append(out, conv)
	}
	return out, nil
}

// Read loads the messages of a conversation.
// POST /history/read
func (c *Client) Read(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp readResponse
	if err := c.doJSON(ctx, http.MethodPost, "/history/read", conversationIDRequest{conversationID}, &resp); err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, model.Message{
			ID:      m.ID,
			Role:    m.Role,
			Content: m.Content,
			Date:    parseTimestamp(m.CreatedAt),
		})
	}
	return msgs, nil
}

// Update sends the conversation's messages to the history service, which
// records the trailing tool and assistant messages.
// POST /history/update
func (c *Client) Update(ctx context.Context, conv *model.Conversation) error {
	return c.doJSON(ctx, http.MethodPost, "/history/update", updateRequest{
		ConversationID: conv.ID,
		Messages:       conv.Messages,
	}, nil)
}

// Rename changes a conversation's title.
// POST /history/rename
func (c *Client) Rename(ctx context.Context, conversationID, title string) error {
	return c.doJSON(ctx, http.MethodPost, "/history/rename", renameRequest{conversationID, title}, nil)
}

// Delete removes a conversation and its messages.
// DELETE /history/delete
func (c *Client) Delete(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/history/delete", conversationIDRequest{conversationID}, nil)
}

// DeleteAll removes every conversation of the current user.
// DELETE /history/delete_all
func (c *Client) DeleteAll(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/history/delete_all", nil, nil)
}

// Clear removes a conversation's messages but keeps the conversation.
// POST /history/clear
func (c *Client) Clear(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodPost, "/history/clear", conversationIDRequest{conversationID}, nil)
}

// doJSON performs a non-streaming request and decodes the JSON reply into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return wrapTransportError(ctx, err)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := "history request failed"
		if e := gjson.GetBytes(raw, "error"); e.Exists() && e.String() != "" {
			msg = e.String()
		}
		return &ClientError{
			Type:       ErrTypeStatus,
			StatusCode: resp.StatusCode,
			Message:    method + " " + path + ": " + msg,
			Body:       string(raw),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}
