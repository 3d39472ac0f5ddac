// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// openTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// uniq returns ids that do not collide across test runs
func uniq(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}

func msg(conversationID, sender, content string) models.Message {
	return models.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

func TestDirectCreateOrAppend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uniq("a"), uniq("b")
	id := a + "_" + b

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, other := a, b
			if i%2 == 1 {
				sender, other = b, a
			}
			created, err := s.AppendDirectMessage(ctx, id, sender, other, msg(id, sender, fmt.Sprintf("m%d", i)))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount)

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, models.KindDirect, conv.Kind)
	assert.Len(t, conv.Participants, 2)

	window, err := s.ReadTrailingWindow(ctx, id, 10, 1)
	require.NoError(t, err)
	assert.Len(t, window, 8)
}

func TestTrailingWindowOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := uniq("self")

	_, err := s.GetOrCreateDirect(ctx, a, a, a)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.AppendMessage(ctx, a, msg(a, a, fmt.Sprintf("m%d", i))))
	}

	page1, err := s.ReadTrailingWindow(ctx, a, 0, 0)
	require.NoError(t, err)
	require.Len(t, page1, storage.DefaultPageSize)
	assert.Equal(t, "m2", page1[0].Content)
	assert.Equal(t, "m6", page1[4].Content)

	page2, err := s.ReadTrailingWindow(ctx, a, 5, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "m0", page2[0].Content)

	page9, err := s.ReadTrailingWindow(ctx, a, 5, 9)
	require.NoError(t, err)
	assert.Empty(t, page9)

	_, err = s.ReadTrailingWindow(ctx, uniq("missing"), 5, 1)
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestGroupLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	groupID := uniq("crew.g")
	owner, m1 := uniq("owner"), uniq("m1")

	require.NoError(t, s.CreateGroup(ctx, groupID, owner, []string{m1}, models.GroupInfo{Name: "Crew"}))
	assert.ErrorIs(t, s.CreateGroup(ctx, groupID, owner, nil, models.GroupInfo{Name: "Crew"}), storage.ErrAlreadyExists)

	conv, err := s.GetConversation(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner, m1}, conv.Participants)
	require.NotNil(t, conv.Group)
	assert.Equal(t, "Crew", conv.Group.Name)

	assert.ErrorIs(t, s.AppendMessage(ctx, groupID, msg(groupID, uniq("stranger"), "x")), storage.ErrNotParticipant)
	assert.ErrorIs(t, s.AppendMessage(ctx, uniq("nope"), msg("", owner, "x")), storage.ErrConversationNotFound)

	require.NoError(t, s.RemoveParticipant(ctx, groupID, m1))
	require.NoError(t, s.RemoveParticipant(ctx, groupID, m1))
	conv, err = s.GetConversation(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner}, conv.Participants)

	assert.ErrorIs(t, s.RemoveParticipant(ctx, uniq("nope"), m1), storage.ErrNotFound)
}

func TestUserDirectory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uniq("ua"), uniq("ub")

	_, err := s.db.ExecContext(ctx, `INSERT INTO users (user_id, display_name) VALUES ($1, 'A'), ($2, 'B')`, a, b)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO friendships (user_id, friend_id) VALUES ($1, $2)`, b, a)
	require.NoError(t, err)

	user, err := s.FindUser(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "A", user.DisplayName)
	assert.Nil(t, user.CredentialsChangedAt)

	missing, err := s.FindUser(ctx, uniq("ghost"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := s.CanMessage(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CanMessage(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, ok)
}
