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

package models

import (
	"time"
)

// ConversationKind is "direct" or "group"
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// GroupInfo is the metadata carried only by group conversations
type GroupInfo struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Conversation represents a direct (two-party or self) or group conversation.
// Messages is only populated by history reads.
type Conversation struct {
	ConversationID string           `json:"conversation_id" db:"conversation_id"`
	Kind           ConversationKind `json:"kind" db:"kind"`
	Participants   []string         `json:"participants"`
	Group          *GroupInfo       `json:"group,omitempty"`
	CreatedBy      string           `json:"created_by" db:"created_by"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
	Messages       []Message        `json:"messages,omitempty"`
}

func (c *Conversation) IsGroup() bool {
	return c.Kind == KindGroup
}

// HasParticipant reports whether userID is currently a member.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is never mutated once appended
type Message struct {
	MessageID      string    `json:"message_id" db:"message_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	SenderID       string    `json:"sender_id" db:"sender_id"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
