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

package storage

import (
	"context"
	"errors"

	"github.com/efchatnet/efrelay/backend/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("sender is not a participant")
	ErrAlreadyExists        = errors.New("conversation already exists")
	ErrNotFound             = errors.New("not found")
)

// Default trailing window used when callers pass non-positive values.
const (
	DefaultPageSize   = 5
	DefaultPageNumber = 1
)

type ConversationStore interface {
	// Direct conversations; the identity is computed by the caller
	GetOrCreateDirect(ctx context.Context, conversationID, participantA, participantB string) (*models.Conversation, error)
	// AppendDirectMessage appends msg, creating the conversation with both
	// participants first if needed, in one atomic write.
	AppendDirectMessage(ctx context.Context, conversationID, participantA, participantB string, msg models.Message) (bool, error)

	// AppendMessage fails with ErrConversationNotFound or ErrNotParticipant
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) error

	// Groups
	CreateGroup(ctx context.Context, groupID, creatorID string, participants []string, meta models.GroupInfo) error
	RemoveParticipant(ctx context.Context, groupID, userID string) error

	// GetConversation returns nil, nil when no conversation has that identity
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	ReadTrailingWindow(ctx context.Context, conversationID string, pageSize, pageNumber int) ([]models.Message, error)
}

// UserDirectory is the external user lookup and eligibility check
type UserDirectory interface {
	// FindUser returns nil, nil for unknown users
	FindUser(ctx context.Context, userID string) (*models.User, error)
	CanMessage(ctx context.Context, senderID, recipientID string) (bool, error)
}

type TokenRevocations interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Store interface {
	ConversationStore
	UserDirectory
}

// NormalizeWindow applies the default page size and number.
func NormalizeWindow(pageSize, pageNumber int) (int, int) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageNumber < 1 {
		pageNumber = DefaultPageNumber
	}
	return pageSize, pageNumber
}
