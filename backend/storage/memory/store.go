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

// Package memory is an in-process implementation of the storage interfaces,
// used for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

var (
	_ storage.Store            = (*Store)(nil)
	_ storage.TokenRevocations = (*Store)(nil)
)

type conversationRecord struct {
	conversation models.Conversation
	messages     []models.Message
}

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversationRecord
	users         map[string]models.User
	friends       map[string]map[string]struct{} // user -> users it accepts messages from
	revoked       map[string]struct{}
	appends       int
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*conversationRecord),
		users:         make(map[string]models.User),
		friends:       make(map[string]map[string]struct{}),
		revoked:       make(map[string]struct{}),
		now:           time.Now,
	}
}

// AddUser creates or replaces a user profile.
func (s *Store) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
}

// AddFriendship makes a and b mutual contacts.
func (s *Store) AddFriendship(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if s.friends[pair[0]] == nil {
			s.friends[pair[0]] = make(map[string]struct{})
		}
		s.friends[pair[0]][pair[1]] = struct{}{}
	}
}

// Revoke marks a credential ID as explicitly invalidated.
func (s *Store) Revoke(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = struct{}{}
}

// AppendCount returns the number of messages appended so far.
func (s *Store) AppendCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}

// ConversationCount returns the number of stored conversations.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *Store) FindUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *Store) CanMessage(ctx context.Context, senderID, recipientID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.friends[recipientID][senderID]
	return ok, nil
}

func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}

func (s *Store) GetOrCreateDirect(ctx context.Context, conversationID, participantA, participantB string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.getOrCreateDirectLocked(conversationID, participantA, participantB)
	conv := copyConversation(rec.conversation)
	return &conv, nil
}

func (s *Store) AppendDirectMessage(ctx context.Context, conversationID, participantA, participantB string, msg models.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, created := s.getOrCreateDirectLocked(conversationID, participantA, participantB)
	if err := s.appendLocked(rec, msg); err != nil {
		return created, err
	}
	return created, nil
}

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return storage.ErrConversationNotFound
	}
	return s.appendLocked(rec, msg)
}

func (s *Store) CreateGroup(ctx context.Context, groupID, creatorID string, participants []string, meta models.GroupInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[groupID]; exists {
		return storage.ErrAlreadyExists
	}

	members := make([]string, 0, len(participants)+1)
	seen := make(map[string]struct{}, len(participants)+1)
	for _, p := range append([]string{creatorID}, participants...) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		members = append(members, p)
	}

	now := s.now()
	group := meta
	s.conversations[groupID] = &conversationRecord{
		conversation: models.Conversation{
			ConversationID: groupID,
			Kind:           models.KindGroup,
			Participants:   members,
			Group:          &group,
			CreatedBy:      creatorID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.conversations[groupID]
	if !ok || !rec.conversation.IsGroup() {
		return storage.ErrNotFound
	}

	kept := rec.conversation.Participants[:0]
	for _, p := range rec.conversation.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	rec.conversation.Participants = kept
	rec.conversation.UpdatedAt = s.now()
	return nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	conv := copyConversation(rec.conversation)
	return &conv, nil
}

func (s *Store) ReadTrailingWindow(ctx context.Context, conversationID string, pageSize, pageNumber int) ([]models.Message, error) {
	pageSize, pageNumber = storage.NormalizeWindow(pageSize, pageNumber)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}

	end := len(rec.messages) - (pageNumber-1)*pageSize
	if end <= 0 {
		return []models.Message{}, nil
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}
	window := make([]models.Message, end-start)
	copy(window, rec.messages[start:end])
	return window, nil
}

// getOrCreateDirectLocked must be called with mu held for writing.
func (s *Store) getOrCreateDirectLocked(conversationID, participantA, participantB string) (*conversationRecord, bool) {
	if rec, ok := s.conversations[conversationID]; ok {
		return rec, false
	}
	participants := []string{participantA}
	if participantB != participantA {
		participants = append(participants, participantB)
	}
	now := s.now()
	rec := &conversationRecord{
		conversation: models.Conversation{
			ConversationID: conversationID,
			Kind:           models.KindDirect,
			Participants:   participants,
			CreatedBy:      participantA,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	s.conversations[conversationID] = rec
	return rec, true
}

// appendLocked must be called with mu held for writing.
func (s *Store) appendLocked(rec *conversationRecord, msg models.Message) error {
	if !rec.conversation.HasParticipant(msg.SenderID) {
		return storage.ErrNotParticipant
	}
	msg.ConversationID = rec.conversation.ConversationID
	rec.messages = append(rec.messages, msg)
	rec.conversation.UpdatedAt = s.now()
	s.appends++
	return nil
}

func copyConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	if c.Group != nil {
		group := *c.Group
		c.Group = &group
	}
	c.Messages = nil
	return c
}
