// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/model"
)

// memService is an in-memory Service used to observe what the store sends.
type memService struct {
	mu        sync.Mutex
	convs     map[string]*model.Conversation
	order     []string
	updates   int
	ensureErr error
	updateErr error
	clearErr  error
}

func newMemService() *memService {
	return &memService{convs: map[string]*model.Conversation{}}
}

func (m *memService) Ensure(ctx context.Context) error { return m.ensureErr }

func (m *memService) List(ctx context.Context, offset int) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Conversation
	for i := offset; i < len(m.order) && len(out) < PageSize; i++ {
		c := m.convs[m.order[i]].Clone()
		c.Messages = []model.Message{}
		out = append(out, c)
	}
	return out, nil
}

func (m *memService) Read(ctx context.Context, id string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return model.CloneMessages(c.Messages), nil
}

func (m *memService) Update(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.convs[conv.ID]; !ok {
		m.order = append([]string{conv.ID}, m.order...)
	}
	m.convs[conv.ID] = conv.Clone()
	return nil
}

func (m *memService) Rename(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	c.Title = title
	return nil
}

func (m *memService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memService) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = map[string]*model.Conversation{}
	m.order = nil
	return nil
}

func (m *memService) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	if c, ok := m.convs[id]; ok {
		c.ClearHistory()
	}
	return nil
}

func seededStore(t *testing.T, svc *memService, n int) *Store {
	t.Helper()
	for i := 0; i < n; i++ {
		conv := model.NewConversation(fmt.Sprintf("c%d", i), fmt.Sprintf("Conversation %d", i), time.Time{})
		conv.Append(model.NewUserMessage(fmt.Sprintf("question %d", i)))
		require.NoError(t, svc.Update(context.Background(), conv))
	}
	svc.updates = 0

	store := NewStore(svc)
	_, err := store.Ensure(context.Background())
	require.NoError(t, err)
	return store
}

// =============================================================================
// STATUS
// =============================================================================

func TestStore_Ensure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"working", nil, StatusWorking},
		{"not configured", &backend.ClientError{Type: backend.ErrTypeNotConfigured, StatusCode: 404}, StatusNotConfigured},
		{"not working", errors.New("boom"), StatusNotWorking},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newMemService()
			svc.ensureErr = tc.err
			store := NewStore(svc)

			got, _ := store.Ensure(context.Background())
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want == StatusWorking, store.Available())
		})
	}

	t.Run("no service", func(t *testing.T) {
		store := NewStore(nil)
		status, err := store.Ensure(context.Background())
		assert.Equal(t, StatusNotConfigured, status)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, store.Flush(context.Background(), model.NewConversation("x", "", time.Time{})), ErrUnavailable)
	})
}

// =============================================================================
// VALUE SEMANTICS
// =============================================================================

func TestStore_FindReturnsCopies(t *testing.T) {
	store := seededStore(t, newMemService(), 1)
	require.NoError(t, store.Load(context.Background()))

	conv, ok := store.Find("c0")
	require.True(t, ok)
	conv.Title = "mutated"
	conv.Append(model.NewAssistantMessage("leak"))

	again, _ := store.Find("c0")
	assert.Equal(t, "Conversation 0", again.Title)
	assert.Empty(t, again.Messages)
}

func TestStore_AppendReplacesAndMovesToFront(t *testing.T) {
	store := seededStore(t, newMemService(), 3)
	require.NoError(t, store.Load(context.Background()))
	before := store.Conversations()
	require.Equal(t, "c2", before[0].ID)

	updated, ok := store.Append("c0", model.NewUserMessage("follow-up"))
	require.True(t, ok)
	assert.Len(t, updated.Messages, 1)

	after := store.Conversations()
	assert.Equal(t, "c0", after[0].ID)
	assert.Empty(t, before[2].Messages, "earlier snapshot must not change")

	_, ok = store.Append("missing", model.NewUserMessage("x"))
	assert.False(t, ok)
}

func TestStore_PutSetsCurrent(t *testing.T) {
	store := NewStore(newMemService())
	conv := model.NewConversation("new", "New", time.Time{})
	store.Put(conv)

	assert.Equal(t, "new", store.CurrentID())
	cur, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "New", cur.Title)

	store.NewChat()
	_, ok = store.Current()
	assert.False(t, ok)
}

// =============================================================================
// SERVICE OPERATIONS
// =============================================================================

func TestStore_SelectReadsMessages(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, 2)
	require.NoError(t, store.Load(context.Background()))

	conv, err := store.Select(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "question 1", conv.Messages[0].Content)
	assert.Equal(t, "c1", store.CurrentID())

	_, err = store.Select(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStore_FlushIsIdempotent(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, 0)

	conv := model.NewConversation("c9", "Idempotent", time.Time{})
	conv.Append(model.NewUserMessage("q"), model.NewAssistantMessage("a"))
	store.Put(conv)

	require.NoError(t, store.Flush(context.Background(), conv))
	first, _ := svc.Read(context.Background(), "c9")
	require.NoError(t, store.Flush(context.Background(), conv))
	second, _ := svc.Read(context.Background(), "c9")

	assert.Equal(t, first, second)
	assert.Equal(t, 2, svc.updates)
}

func TestStore_FlushFailureKeepsMemory(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, 0)
	svc.updateErr = errors.New("write failed")

	conv := model.NewConversation("c1", "Kept", time.Time{})
	conv.Append(model.NewUserMessage("q"))
	store.Put(conv)

	err := store.Flush(context.Background(), conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write failed")

	kept, ok := store.Find("c1")
	require.True(t, ok)
	assert.Len(t, kept.Messages, 1)
}

func TestStore_ClearRenameDelete(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, 3)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	_, err := store.Select(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "c1"))
	c1, _ := store.Find("c1")
	assert.Empty(t, c1.Messages)

	require.NoError(t, store.Rename(ctx, "c1", "Renamed"))
	c1, _ = store.Find("c1")
	assert.Equal(t, "Renamed", c1.Title)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, ok := store.Find("c1")
	assert.False(t, ok)
	assert.Equal(t, "", store.CurrentID())

	require.NoError(t, store.DeleteAll(ctx))
	assert.Empty(t, store.Conversations())
}

func TestStore_ClearFailureLeavesMessages(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, 1)
	ctx := context.Background()
	require.NoError(t, store.Load(ctx))
	_, err := store.Select(ctx, "c0")
	require.NoError(t, err)

	svc.clearErr = errors.New("denied")
	require.Error(t, store.Clear(ctx, "c0"))
	c0, _ := store.Find("c0")
	assert.Len(t, c0.Messages, 1)
}

func TestStore_LoadMorePaginates(t *testing.T) {
	svc := newMemService()
	store := seededStore(t, svc, PageSize+3)
	ctx := context.Background()

	require.NoError(t, store.Load(ctx))
	assert.Len(t, store.Conversations(), PageSize)

	added, err := store.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = store.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}
