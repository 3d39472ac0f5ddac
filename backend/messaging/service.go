// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package messaging validates, persists and fans out chat messages.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/conversation"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/presence"
	"github.com/efchatnet/efrelay/backend/storage"
)

// Session is the handshake result for one connection. RequestID is set per
// inbound event and echoed on acks.
type Session struct {
	UserID      string
	DisplayName string
	Conn        presence.Conn
	RequestID   string
}

type Service struct {
	conversations storage.ConversationStore
	users         storage.UserDirectory
	presence      *presence.Registry
	rooms         *presence.Rooms
	maxGroupSize  int
	log           *logrus.Entry
	now           func() time.Time
}

func NewService(conversations storage.ConversationStore, users storage.UserDirectory, registry *presence.Registry, rooms *presence.Rooms, maxGroupSize int, log *logrus.Entry) *Service {
	return &Service{
		conversations: conversations,
		users:         users,
		presence:      registry,
		rooms:         rooms,
		maxGroupSize:  maxGroupSize,
		log:           log.WithField("component", "messaging"),
		now:           time.Now,
	}
}

func groupNotFound() *apperrors.Error {
	return apperrors.New(apperrors.GroupNotFound, "Group chat does not exist")
}

func (s *Service) newMessage(conversationID, senderID, content string) models.Message {
	return models.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
}

// checkRecipient enforces that recipientID exists and accepts messages from
// senderID. Self conversations skip both checks.
func (s *Service) checkRecipient(ctx context.Context, senderID, recipientID string) error {
	if senderID == recipientID {
		return nil
	}
	if !conversation.ValidUserID(recipientID) {
		return apperrors.New(apperrors.InvalidPayload, "Invalid recipient")
	}

	user, err := s.users.FindUser(ctx, recipientID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if user == nil {
		return apperrors.New(apperrors.RecipientNotFound, "Recipient does not exist")
	}

	allowed, err := s.users.CanMessage(ctx, senderID, recipientID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !allowed {
		return apperrors.New(apperrors.NotAuthorizedToMessage, "You are not allowed to message this user")
	}
	return nil
}

// memberGroup loads groupID and checks userID is a current participant.
func (s *Service) memberGroup(ctx context.Context, userID, groupID string) (*models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, groupID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if conv == nil || !conv.IsGroup() || !conv.HasParticipant(userID) {
		return nil, groupNotFound()
	}
	return conv, nil
}

// SendDirectMessage persists content in the direct conversation between the
// session user and recipientID, then echoes it to every connection of the
// sender and notifies every connection of the recipient.
func (s *Service) SendDirectMessage(ctx context.Context, sess Session, recipientID, content string) (*models.MessageSentAck, error) {
	if err := s.checkRecipient(ctx, sess.UserID, recipientID); err != nil {
		return nil, err
	}

	conversationID := conversation.DirectKey(sess.UserID, recipientID)
	msg := s.newMessage(conversationID, sess.UserID, content)

	created, err := s.conversations.AppendDirectMessage(ctx, conversationID, sess.UserID, recipientID, msg)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Lost the create race; the conversation exists now
		created, err = false, s.conversations.AppendMessage(ctx, conversationID, msg)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	ack := models.MessageSentAck{
		RequestID:      sess.RequestID,
		MessageID:      msg.MessageID,
		ConversationID: conversationID,
		Recipient:      recipientID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	echoed := presence.Deliver(s.presence.ConnectionsFor(sess.UserID), ack)

	notified := 0
	if recipientID != sess.UserID {
		notified = presence.Deliver(s.presence.ConnectionsFor(recipientID), models.MessageReceived{
			MessageID:      msg.MessageID,
			ConversationID: conversationID,
			Content:        msg.Content,
			From:           sess.UserID,
			FromName:       sess.DisplayName,
			CreatedAt:      msg.CreatedAt,
		})
	}

	s.log.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"sender":          sess.UserID,
		"created":         created,
		"echoed":          echoed,
		"notified":        notified,
	}).Debug("direct message sent")

	return &ack, nil
}

// SendGroupMessage appends content to groupID and broadcasts it to the
// room's subscribers that are still participants, excluding the sender's
// own connections, which receive the echo instead.
func (s *Service) SendGroupMessage(ctx context.Context, sess Session, groupID, content string) (*models.MessageSentAck, error) {
	conv, err := s.memberGroup(ctx, sess.UserID, groupID)
	if err != nil {
		return nil, err
	}

	msg := s.newMessage(groupID, sess.UserID, content)
	if err := s.conversations.AppendMessage(ctx, groupID, msg); err != nil {
		if errors.Is(err, storage.ErrNotParticipant) || errors.Is(err, storage.ErrConversationNotFound) {
			return nil, groupNotFound()
		}
		return nil, apperrors.Internal(err)
	}

	ack := models.MessageSentAck{
		RequestID:      sess.RequestID,
		MessageID:      msg.MessageID,
		ConversationID: groupID,
		Group:          groupID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
	echoed := presence.Deliver(s.presence.ConnectionsFor(sess.UserID), ack)

	var targets []presence.Conn
	for _, c := range s.rooms.Subscribers(groupID) {
		if c.UserID() != sess.UserID && conv.HasParticipant(c.UserID()) {
			targets = append(targets, c)
		}
	}
	notified := presence.Deliver(targets, models.MessageReceived{
		MessageID:      msg.MessageID,
		ConversationID: groupID,
		Group:          groupID,
		Content:        msg.Content,
		From:           sess.UserID,
		FromName:       sess.DisplayName,
		CreatedAt:      msg.CreatedAt,
	})

	s.log.WithFields(logrus.Fields{
		"group":    groupID,
		"sender":   sess.UserID,
		"echoed":   echoed,
		"notified": notified,
	}).Debug("group message sent")

	return &ack, nil
}

// JoinRoom subscribes the session's connection to a group it belongs to.
func (s *Service) JoinRoom(ctx context.Context, sess Session, roomID string) error {
	if _, err := s.memberGroup(ctx, sess.UserID, roomID); err != nil {
		return err
	}
	s.rooms.Subscribe(roomID, sess.Conn)
	sess.Conn.Send(models.RoomJoined{RequestID: sess.RequestID, Room: roomID})
	return nil
}

// LeaveRoom removes the session user from the group and unsubscribes all
// of that user's connections from its room.
func (s *Service) LeaveRoom(ctx context.Context, sess Session, roomID string) error {
	if _, err := s.memberGroup(ctx, sess.UserID, roomID); err != nil {
		return err
	}

	if err := s.conversations.RemoveParticipant(ctx, roomID, sess.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return groupNotFound()
		}
		return apperrors.Internal(err)
	}
	s.rooms.UnsubscribeUser(roomID, sess.UserID)
	sess.Conn.Send(models.RoomLeft{RequestID: sess.RequestID, Room: roomID})

	s.log.WithFields(logrus.Fields{"group": roomID, "user_id": sess.UserID}).Info("participant left group")
	return nil
}
