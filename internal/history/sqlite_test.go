// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/model"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleConversation(id string) *model.Conversation {
	conv := model.NewConversation(id, "Sample "+id, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	conv.Messages = []model.Message{
		{ID: id + "-u", Role: model.RoleUser, Content: "What changed?", Date: conv.CreatedAt},
		{ID: id + "-t", Role: model.RoleTool, Content: `{"citations":[]}`, Date: conv.CreatedAt},
		{ID: id + "-a", Role: model.RoleAssistant, Content: "Everything.", Date: conv.CreatedAt},
	}
	conv.UpdatedAt = conv.CreatedAt.Add(time.Minute)
	return conv
}

func TestSQLite_UpdateAndRead(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Ensure(ctx))
	assert.True(t, db.MintsConversations())

	conv := sampleConversation("c1")
	conv.Messages = append(conv.Messages, model.Message{ID: "c1-e", Role: model.RoleError, Content: "not saved"})
	require.NoError(t, db.Update(ctx, conv))

	msgs, err := db.Read(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3, "error notices are not stored")
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleTool, msgs[1].Role)
	assert.Equal(t, "Everything.", msgs[2].Content)
	assert.True(t, msgs[0].Date.Equal(conv.CreatedAt))
}

func TestSQLite_UpdateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	conv := sampleConversation("c1")

	require.NoError(t, db.Update(ctx, conv))
	first, err := db.Read(ctx, "c1")
	require.NoError(t, err)
	list1, err := db.List(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, db.Update(ctx, conv))
	second, err := db.Read(ctx, "c1")
	require.NoError(t, err)
	list2, err := db.List(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, list1, list2)
}

func TestSQLite_UpdateAppendsGrowingConversation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	conv := sampleConversation("c1")
	require.NoError(t, db.Update(ctx, conv))

	conv.Append(model.NewUserMessage("And then?"), model.NewAssistantMessage("Nothing else."))
	require.NoError(t, db.Update(ctx, conv))

	msgs, err := db.Read(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, "Nothing else.", msgs[4].Content)
}

func TestSQLite_ListOrderAndPaging(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < PageSize+2; i++ {
		conv := model.NewConversation(model.NewID(), "t", base)
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, db.Update(ctx, conv))
	}

	page1, err := db.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, page1, PageSize)
	assert.True(t, page1[0].UpdatedAt.After(page1[1].UpdatedAt))

	page2, err := db.List(ctx, PageSize)
	require.NoError(t, err)
	assert.Len(t, page2, 2)
}

func TestSQLite_RenameClearDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Update(ctx, sampleConversation("c1")))
	require.NoError(t, db.Update(ctx, sampleConversation("c2")))

	require.NoError(t, db.Rename(ctx, "c1", "Renamed"))
	list, err := db.List(ctx, 0)
	require.NoError(t, err)
	titles := map[string]string{}
	for _, c := range list {
		titles[c.ID] = c.Title
	}
	assert.Equal(t, "Renamed", titles["c1"])

	require.NoError(t, db.Clear(ctx, "c1"))
	msgs, err := db.Read(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, db.Delete(ctx, "c2"))
	_, err = db.Read(ctx, "c2")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	assert.ErrorIs(t, db.Rename(ctx, "missing", "x"), ErrConversationNotFound)
	assert.ErrorIs(t, db.Clear(ctx, "missing"), ErrConversationNotFound)

	require.NoError(t, db.DeleteAll(ctx))
	list, err = db.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_BacksStore(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	status, err := store.Ensure(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusWorking, status)
	assert.True(t, store.MintsConversations())

	conv := sampleConversation("c1")
	store.Put(conv)
	require.NoError(t, store.Flush(ctx, conv))

	fresh := NewStore(db)
	_, _ = fresh.Ensure(ctx)
	require.NoError(t, fresh.Load(ctx))
	loaded, err := fresh.Select(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 3)
}
