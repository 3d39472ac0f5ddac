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

import "time"

// OutboundEvent is implemented by every event the core emits to a
// connection. Wire names are assigned by the gateway codec.
type OutboundEvent interface {
	outboundEvent()
}

// MessageSentAck is echoed to every connection of the sender
type MessageSentAck struct {
	RequestID      string    `json:"requestId,omitempty"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Recipient      string    `json:"recipient,omitempty"`
	Group          string    `json:"group,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessageReceived notifies recipient and group connections
type MessageReceived struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Group          string    `json:"group,omitempty"`
	Content        string    `json:"content"`
	From           string    `json:"from"`
	FromName       string    `json:"fromName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PresenceChanged is broadcast when a user's first connection opens or
// the last one closes.
type PresenceChanged struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type RoomJoined struct {
	RequestID string `json:"requestId,omitempty"`
	Room      string `json:"room"`
}

type RoomLeft struct {
	RequestID string `json:"requestId,omitempty"`
	Room      string `json:"room"`
}

type Pong struct {
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// OperationError is sent only to the connection that originated the failing event
type OperationError struct {
	RequestID string `json:"requestId,omitempty"`
	Event     string `json:"event,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (MessageSentAck) outboundEvent()  {}
func (MessageReceived) outboundEvent() {}
func (PresenceChanged) outboundEvent() {}
func (RoomJoined) outboundEvent()      {}
func (RoomLeft) outboundEvent()        {}
func (Pong) outboundEvent()            {}
func (OperationError) outboundEvent()  {}
