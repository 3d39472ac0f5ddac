// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/conversation"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/presence"
	"github.com/efchatnet/efrelay/backend/storage/memory"
)

type recordingConn struct {
	id     string
	userID string
	refuse bool

	mu     sync.Mutex
	events []models.OutboundEvent
}

func (c *recordingConn) ID() string     { return c.id }
func (c *recordingConn) UserID() string { return c.userID }

func (c *recordingConn) Send(event models.OutboundEvent) bool {
	if c.refuse {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *recordingConn) received() []models.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.OutboundEvent(nil), c.events...)
}

type harness struct {
	store    *memory.Store
	registry *presence.Registry
	rooms    *presence.Rooms
	svc      *Service
}

func newHarness() *harness {
	logger, _ := logtest.NewNullLogger()
	h := &harness{
		store:    memory.NewStore(),
		registry: presence.NewRegistry(),
		rooms:    presence.NewRooms(),
	}
	h.svc = NewService(h.store, h.store, h.registry, h.rooms, 5, logrus.NewEntry(logger))
	return h
}

func (h *harness) user(id string) {
	h.store.AddUser(models.User{UserID: id, DisplayName: "name-" + id})
}

func (h *harness) connect(userID, connID string) *recordingConn {
	c := &recordingConn{id: connID, userID: userID}
	h.registry.Register(userID, c)
	return c
}

func session(c *recordingConn) Session {
	return Session{UserID: c.userID, DisplayName: "name-" + c.userID, Conn: c}
}

func (h *harness) group(t *testing.T, creator string, invitees ...string) string {
	t.Helper()
	for _, id := range invitees {
		h.store.AddFriendship(creator, id)
	}
	conv, err := h.svc.CreateGroup(context.Background(), creator, CreateGroupRequest{Name: "Room", Participants: invitees})
	require.NoError(t, err)
	return conv.ConversationID
}

func TestDirectMessageFanOut(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("u2")
	h.store.AddFriendship("u1", "u2")

	c1a := h.connect("u1", "c1a")
	c1b := h.connect("u1", "c1b")
	c2 := h.connect("u2", "c2")

	ack, err := h.svc.SendDirectMessage(context.Background(), session(c1a), "u2", "hi")
	require.NoError(t, err)
	assert.Equal(t, conversation.DirectKey("u1", "u2"), ack.ConversationID)

	for _, c := range []*recordingConn{c1a, c1b} {
		events := c.received()
		require.Len(t, events, 1)
		sent, ok := events[0].(models.MessageSentAck)
		require.True(t, ok)
		assert.Equal(t, "hi", sent.Content)
		assert.Equal(t, "u2", sent.Recipient)
	}

	events := c2.received()
	require.Len(t, events, 1)
	got, ok := events[0].(models.MessageReceived)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, "u1", got.From)
	assert.Equal(t, "name-u1", got.FromName)

	history, err := h.store.ReadTrailingWindow(context.Background(), conversation.DirectKey("u1", "u2"), 10, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "u1", history[0].SenderID)
	assert.Equal(t, "hi", history[0].Content)
}

func TestReplyJoinsSameConversation(t *testing.T) {
	h := newHarness()
	h.user("a")
	h.user("b")
	h.store.AddFriendship("a", "b")
	ca := h.connect("a", "ca")
	cb := h.connect("b", "cb")

	_, err := h.svc.SendDirectMessage(context.Background(), session(ca), "b", "first")
	require.NoError(t, err)
	_, err = h.svc.SendDirectMessage(context.Background(), session(cb), "a", "second")
	require.NoError(t, err)

	assert.Equal(t, 1, h.store.ConversationCount())
	history, err := h.store.ReadTrailingWindow(context.Background(), conversation.DirectKey("a", "b"), 10, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
}

func TestDirectMessageRecipientChecks(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("stranger")
	c := h.connect("u1", "c1")

	_, err := h.svc.SendDirectMessage(context.Background(), session(c), "ghost", "hi")
	assert.Equal(t, apperrors.RecipientNotFound, apperrors.CodeOf(err))

	_, err = h.svc.SendDirectMessage(context.Background(), session(c), "stranger", "hi")
	assert.Equal(t, apperrors.NotAuthorizedToMessage, apperrors.CodeOf(err))

	_, err = h.svc.SendDirectMessage(context.Background(), session(c), "bad id!", "hi")
	assert.Equal(t, apperrors.InvalidPayload, apperrors.CodeOf(err))

	assert.Equal(t, 0, h.store.AppendCount())
	assert.Empty(t, c.received())
}

func TestSelfMessageEchoesOnly(t *testing.T) {
	h := newHarness()
	c1 := h.connect("u1", "c1")
	c2 := h.connect("u1", "c2")

	ack, err := h.svc.SendDirectMessage(context.Background(), session(c1), "u1", "note to self")
	require.NoError(t, err)
	assert.Equal(t, "u1", ack.ConversationID)

	for _, c := range []*recordingConn{c1, c2} {
		events := c.received()
		require.Len(t, events, 1)
		assert.IsType(t, models.MessageSentAck{}, events[0])
	}
}

func TestRefusingConnectionDoesNotStopDelivery(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("u2")
	h.store.AddFriendship("u1", "u2")
	sender := h.connect("u1", "c1")

	stuck := &recordingConn{id: "c2-stuck", userID: "u2", refuse: true}
	h.registry.Register("u2", stuck)
	healthy := h.connect("u2", "c2-ok")

	_, err := h.svc.SendDirectMessage(context.Background(), session(sender), "u2", "hi")
	require.NoError(t, err)
	assert.Len(t, healthy.received(), 1)
}

func TestOfflineRecipientStillPersists(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("u2")
	h.store.AddFriendship("u1", "u2")
	c := h.connect("u1", "c1")

	_, err := h.svc.SendDirectMessage(context.Background(), session(c), "u2", "later")
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.AppendCount())
}

func TestGroupMessageBroadcast(t *testing.T) {
	h := newHarness()
	for _, id := range []string{"owner", "m1", "m2"} {
		h.user(id)
	}
	groupID := h.group(t, "owner", "m1", "m2")

	ownerA := h.connect("owner", "oa")
	ownerB := h.connect("owner", "ob")
	m1 := h.connect("m1", "m1c")
	m2 := h.connect("m2", "m2c")

	require.NoError(t, h.svc.JoinRoom(context.Background(), session(ownerA), groupID))
	require.NoError(t, h.svc.JoinRoom(context.Background(), session(m1), groupID))

	ack, err := h.svc.SendGroupMessage(context.Background(), session(ownerA), groupID, "hello all")
	require.NoError(t, err)
	assert.Equal(t, groupID, ack.Group)

	// Echo on both sender connections, room-joined ack only on ownerA
	assert.Len(t, ownerA.received(), 2)
	assert.Len(t, ownerB.received(), 1)

	m1Events := m1.received()
	require.Len(t, m1Events, 2)
	assert.IsType(t, models.RoomJoined{}, m1Events[0])
	got := m1Events[1].(models.MessageReceived)
	assert.Equal(t, "owner", got.From)
	assert.Equal(t, groupID, got.Group)

	// m2 never joined the room
	assert.Empty(t, m2.received())
}

func TestGroupMessageFromNonParticipant(t *testing.T) {
	h := newHarness()
	h.user("owner")
	h.user("m1")
	groupID := h.group(t, "owner", "m1")

	listener := h.connect("m1", "m1c")
	require.NoError(t, h.svc.JoinRoom(context.Background(), session(listener), groupID))
	outsider := h.connect("intruder", "ic")

	_, err := h.svc.SendGroupMessage(context.Background(), session(outsider), groupID, "let me in")
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
	assert.Equal(t, 0, h.store.AppendCount())
	assert.Len(t, listener.received(), 1)
	assert.Empty(t, outsider.received())
}

func TestGroupMessageToDirectConversation(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("u2")
	h.store.AddFriendship("u1", "u2")
	c := h.connect("u1", "c1")
	_, err := h.svc.SendDirectMessage(context.Background(), session(c), "u2", "hi")
	require.NoError(t, err)

	_, err = h.svc.SendGroupMessage(context.Background(), session(c), conversation.DirectKey("u1", "u2"), "hi")
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
}

func TestJoinRoom(t *testing.T) {
	h := newHarness()
	h.user("owner")
	h.user("u3")
	groupID := h.group(t, "owner", "u3")
	c := h.connect("u3", "c3")

	sess := session(c)
	sess.RequestID = "r1"
	require.NoError(t, h.svc.JoinRoom(context.Background(), sess, groupID))
	assert.True(t, h.rooms.IsSubscribed(groupID, c))
	assert.Equal(t, []models.OutboundEvent{models.RoomJoined{RequestID: "r1", Room: groupID}}, c.received())

	err := h.svc.JoinRoom(context.Background(), session(c), "R2")
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
	assert.False(t, h.rooms.IsSubscribed("R2", c))
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness()
	h.user("owner")
	h.user("u3")
	groupID := h.group(t, "owner", "u3")
	phone := h.connect("u3", "phone")
	laptop := h.connect("u3", "laptop")
	ctx := context.Background()

	require.NoError(t, h.svc.JoinRoom(ctx, session(phone), groupID))
	require.NoError(t, h.svc.JoinRoom(ctx, session(laptop), groupID))

	require.NoError(t, h.svc.LeaveRoom(ctx, session(phone), groupID))
	assert.False(t, h.rooms.IsSubscribed(groupID, phone))
	assert.False(t, h.rooms.IsSubscribed(groupID, laptop))

	conv, err := h.store.GetConversation(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, conv.HasParticipant("u3"))

	// Departed members need a fresh invitation
	err = h.svc.LeaveRoom(ctx, session(phone), groupID)
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
	err = h.svc.JoinRoom(ctx, session(phone), groupID)
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
	_, err = h.svc.SendGroupMessage(ctx, session(phone), groupID, "still here?")
	assert.Equal(t, apperrors.GroupNotFound, apperrors.CodeOf(err))
}

type failingStore struct {
	*memory.Store
}

func (failingStore) AppendDirectMessage(ctx context.Context, conversationID, a, b string, msg models.Message) (bool, error) {
	return false, errors.New("connection reset by peer")
}

func TestRepositoryFailureIsInternal(t *testing.T) {
	h := newHarness()
	h.user("u1")
	h.user("u2")
	h.store.AddFriendship("u1", "u2")
	svc := NewService(failingStore{h.store}, h.store, h.registry, h.rooms, 5, logrus.NewEntry(logrus.New()))
	c := h.connect("u1", "c1")

	_, err := svc.SendDirectMessage(context.Background(), session(c), "u2", "hi")
	appErr := apperrors.As(err)
	assert.Equal(t, apperrors.InternalError, appErr.Code)
	assert.Equal(t, "Internal server error", appErr.Message)
	assert.Empty(t, c.received())
}
