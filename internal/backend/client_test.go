// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{
		BaseURL:           srv.URL + "/",
		AuthToken:         "tok",
		RequestsPerSecond: -1,
	})
}

// =============================================================================
// STREAMING ENDPOINTS
// =============================================================================

func TestClient_GenerateStreams(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history/generate", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.ConversationID)
		assert.Len(t, req.Messages, 1)

		flusher := w.(http.Flusher)
		io.WriteString(w, `{"choices":[{"messages":[{"role":"assistant","con`)
		flusher.Flush()
		io.WriteString(w, `tent":"Hi"}]}],"history_metadata":{"conversation_id":"c1"}}`+"\n")
	})

	stream, err := client.Generate(context.Background(), []model.Message{model.NewUserMessage("hello")}, "c1")
	require.NoError(t, err)
	defer stream.Close()
	require.True(t, stream.OK())

	env, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Hi", env.Fragments()[0].Content)
	assert.Equal(t, "c1", env.HistoryMetadata.ConversationID)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_RoutesByEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		io.WriteString(w, `{"image_url":"u"}`)
	})

	ctx := context.Background()
	for _, open := range []func() (*Stream, error){
		func() (*Stream, error) { return client.Conversation(ctx, nil) },
		func() (*Stream, error) { return client.Dalle(ctx, nil) },
	} {
		s, err := open()
		require.NoError(t, err)
		s.Close()
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/conversation", "/dalle"}, paths)
}

func TestClient_NonOKStreamIsReturned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Please reduce the length of the messages or completion."}`)
	})

	stream, err := client.Conversation(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.OK())
	assert.Equal(t, http.StatusBadRequest, stream.StatusCode)
	assert.Contains(t, stream.ReadBody(), "Please reduce the length")
}

func TestClient_ConnectionFailure(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{BaseURL: "http://127.0.0.1:1", RequestsPerSecond: -1})

	_, err := client.Conversation(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection), "got %v", err)
}

func TestClient_StreamHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Conversation(ctx, nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "got %v", err)
}

// =============================================================================
// HISTORY API
// =============================================================================

func TestClient_HistoryOperations(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var (
		mu    sync.Mutex
		calls []call
	)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, body})
		mu.Unlock()

		switch r.URL.Path {
		case "/history/list":
			assert.Equal(t, "25", r.URL.Query().Get("offset"))
			io.WriteString(w, `[{"id":"c1","title":"First","createdAt":"2024-05-01T10:00:00.000000","updatedAt":"2024-05-02T10:00:00.000000"}]`)
		case "/history/read":
			io.WriteString(w, `{"conversation_id":"c1","messages":[{"id":"m1","role":"user","content":"hi","createdAt":"2024-05-01T10:00:00.000000"}]}`)
		default:
			io.WriteString(w, `{"success":true}`)
		}
	})
	ctx := context.Background()

	convs, err := client.List(ctx, 25)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "First", convs[0].Title)
	assert.Equal(t, 2, convs[0].UpdatedAt.Day())

	msgs, err := client.Read(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)

	conv := model.NewConversation("c1", "First", time.Time{})
	conv.Append(model.NewUserMessage("hi"), model.NewAssistantMessage("hello"))
	require.NoError(t, client.Update(ctx, conv))
	require.NoError(t, client.Rename(ctx, "c1", "Renamed"))
	require.NoError(t, client.Clear(ctx, "c1"))
	require.NoError(t, client.Delete(ctx, "c1"))
	require.NoError(t, client.DeleteAll(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 7)
	assert.Equal(t, http.MethodPost, calls[2].method)
	assert.Equal(t, "/history/update", calls[2].path)
	assert.Len(t, calls[2].body["messages"], 2)
	assert.Equal(t, "Renamed", calls[3].body["title"])
	assert.Equal(t, "/history/clear", calls[4].path)
	assert.Equal(t, http.MethodDelete, calls[5].method)
	assert.Equal(t, "c1", calls[5].body["conversation_id"])
	assert.Equal(t, "/history/delete_all", calls[6].path)
}

func TestClient_Ensure(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		body           string
		wantErr        bool
		wantConfigured bool
	}{
		{"working", http.StatusOK, `{"message":"CosmosDB is configured and working"}`, false, true},
		{"not configured", http.StatusNotFound, `{"error":"CosmosDB is not configured"}`, true, false},
		{"not working", http.StatusInternalServerError, `{"error":"CosmosDB is not working"}`, true, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			err := client.Ensure(context.Background())
			assert.Equal(t, tc.wantErr, err != nil)
			assert.Equal(t, !tc.wantConfigured, IsNotConfigured(err))
			if tc.wantErr {
				var ce *ClientError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tc.status, ce.StatusCode)
			}
		})
	}
}

func TestClientError_IsMatchesByType(t *testing.T) {
	err := &ClientError{Type: ErrTypeTimeout, Message: "slow", Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.Equal(t, "slow: context deadline exceeded", err.Error())
}
