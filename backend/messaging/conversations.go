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
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/conversation"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// Group name bounds, in runes
const (
	MinGroupNameLength = 2
	MaxGroupNameLength = 5000
)

// CreateGroupRequest carries the fields of a new group
type CreateGroupRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
	Image        string   `json:"image,omitempty"`
}

// CreateGroup validates the invitees and creates a group with the creator as
// its first participant. Every invitee must exist and accept messages from
// the creator.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, req CreateGroupRequest) (*models.Conversation, error) {
	if n := utf8.RuneCountInString(req.Name); n < MinGroupNameLength || n > MaxGroupNameLength {
		return nil, apperrors.New(apperrors.InvalidPayload, "Group name must be between 2 and 5000 characters")
	}
	if len(req.Participants) == 0 {
		return nil, apperrors.New(apperrors.InvalidPayload, "A group needs at least one participant")
	}

	members, err := conversation.ValidateGroupParticipants(req.Participants, creatorID, s.maxGroupSize)
	if err != nil {
		return nil, err
	}
	invitees := members[1:]
	for _, id := range invitees {
		if err := s.checkRecipient(ctx, creatorID, id); err != nil {
			return nil, err
		}
	}

	groupID := conversation.NewGroupToken(req.Name)
	meta := models.GroupInfo{Name: req.Name, Image: req.Image}
	if err := s.conversations.CreateGroup(ctx, groupID, creatorID, invitees, meta); err != nil {
		return nil, apperrors.Internal(err)
	}

	conv, err := s.conversations.GetConversation(ctx, groupID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if conv == nil {
		return nil, apperrors.Internal(errors.New("created group not found"))
	}

	s.log.WithFields(logrus.Fields{
		"group":        groupID,
		"creator":      creatorID,
		"participants": len(conv.Participants),
	}).Info("group created")
	return conv, nil
}

// OpenDirect returns the direct conversation with otherID, creating it
// empty if needed.
func (s *Service) OpenDirect(ctx context.Context, userID, otherID string) (*models.Conversation, error) {
	if err := s.checkRecipient(ctx, userID, otherID); err != nil {
		return nil, err
	}
	conv, err := s.conversations.GetOrCreateDirect(ctx, conversation.DirectKey(userID, otherID), userID, otherID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return conv, nil
}

// DirectHistory reads a trailing window of the direct conversation with
// otherID. History of a conversation that was never started is
// ConversationNotFound.
func (s *Service) DirectHistory(ctx context.Context, userID, otherID string, pageSize, pageNumber int) (*models.Conversation, error) {
	if !conversation.ValidUserID(otherID) {
		return nil, apperrors.New(apperrors.InvalidPayload, "Invalid user")
	}
	conversationID := conversation.DirectKey(userID, otherID)

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if conv == nil {
		return nil, apperrors.New(apperrors.ConversationNotFound, "Conversation does not exist")
	}
	return s.withWindow(ctx, conv, pageSize, pageNumber)
}

// GroupHistory reads a trailing window of a group the user belongs to.
func (s *Service) GroupHistory(ctx context.Context, userID, groupID string, pageSize, pageNumber int) (*models.Conversation, error) {
	conv, err := s.memberGroup(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	return s.withWindow(ctx, conv, pageSize, pageNumber)
}

func (s *Service) withWindow(ctx context.Context, conv *models.Conversation, pageSize, pageNumber int) (*models.Conversation, error) {
	messages, err := s.conversations.ReadTrailingWindow(ctx, conv.ConversationID, pageSize, pageNumber)
	if errors.Is(err, storage.ErrConversationNotFound) {
		return nil, apperrors.New(apperrors.ConversationNotFound, "Conversation does not exist")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	conv.Messages = messages
	return conv, nil
}
