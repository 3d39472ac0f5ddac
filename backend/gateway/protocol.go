// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package gateway

import (
	"encoding/json"

	"github.com/efchatnet/efrelay/backend/models"
)

// Inbound event names
const (
	EventSendDirectMessage = "send-direct-message"
	EventSendGroupMessage  = "send-group-message"
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventPing              = "ping"
)

// Outbound event names
const (
	EventMessageSentAck  = "message-sent-ack"
	EventMessageReceived = "message-received"
	EventPresenceChanged = "presence-changed"
	EventRoomJoined      = "room-joined"
	EventRoomLeft        = "room-left"
	EventPong            = "pong"
	EventOperationError  = "operation-error"
)

// InboundFrame is one client event. ID, when set, is echoed on the ack or
// error it produces.
type InboundFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type OutboundFrame struct {
	Event string               `json:"event"`
	Data  models.OutboundEvent `json:"data"`
}

type directMessagePayload struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type groupMessagePayload struct {
	Group   string `json:"group"`
	Content string `json:"content"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type pingPayload struct {
	Payload any `json:"payload,omitempty"`
}

// EventName returns the wire name of an outbound event.
func EventName(event models.OutboundEvent) string {
	switch event.(type) {
	case models.MessageSentAck:
		return EventMessageSentAck
	case models.MessageReceived:
		return EventMessageReceived
	case models.PresenceChanged:
		return EventPresenceChanged
	case models.RoomJoined:
		return EventRoomJoined
	case models.RoomLeft:
		return EventRoomLeft
	case models.Pong:
		return EventPong
	case models.OperationError:
		return EventOperationError
	default:
		return ""
	}
}

func encodeFrame(event models.OutboundEvent) ([]byte, error) {
	return json.Marshal(OutboundFrame{Event: EventName(event), Data: event})
}
