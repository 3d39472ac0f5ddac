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

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/conversation"
	"github.com/efchatnet/efrelay/backend/messaging"
	"github.com/efchatnet/efrelay/backend/models"
)

const maxRoomLength = 255

// Messenger is the messaging surface the router dispatches to
type Messenger interface {
	SendDirectMessage(ctx context.Context, sess messaging.Session, recipientID, content string) (*models.MessageSentAck, error)
	SendGroupMessage(ctx context.Context, sess messaging.Session, groupID, content string) (*models.MessageSentAck, error)
	JoinRoom(ctx context.Context, sess messaging.Session, roomID string) error
	LeaveRoom(ctx context.Context, sess messaging.Session, roomID string) error
}

type handlerFunc func(ctx context.Context, sess messaging.Session, data json.RawMessage) error

// Router binds inbound event names to messaging operations. Failures are
// reported to the originating connection only.
type Router struct {
	messenger     Messenger
	maxContentLen int
	handlers      map[string]handlerFunc
	log           *logrus.Entry
}

func NewRouter(messenger Messenger, maxContentLen int, log *logrus.Entry) *Router {
	r := &Router{
		messenger:     messenger,
		maxContentLen: maxContentLen,
		log:           log.WithField("component", "router"),
	}
	r.handlers = map[string]handlerFunc{
		EventSendDirectMessage: r.sendDirectMessage,
		EventSendGroupMessage:  r.sendGroupMessage,
		EventJoinRoom:          r.joinRoom,
		EventLeaveRoom:         r.leaveRoom,
		EventPing:              r.ping,
	}
	return r
}

// Dispatch decodes one inbound frame and runs its handler.
func (r *Router) Dispatch(ctx context.Context, sess messaging.Session, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.fail(sess, "", apperrors.Wrap(apperrors.InvalidPayload, "Malformed event frame", err))
		return
	}
	sess.RequestID = frame.ID

	handler, ok := r.handlers[frame.Event]
	if !ok {
		r.fail(sess, frame.Event, apperrors.New(apperrors.InvalidPayload, fmt.Sprintf("Unknown event %q", frame.Event)))
		return
	}

	if err := r.invoke(ctx, frame.Event, handler, sess, frame.Data); err != nil {
		r.fail(sess, frame.Event, err)
	}
}

// invoke converts a panic inside handler into an InternalError.
func (r *Router) invoke(ctx context.Context, event string, handler handlerFunc, sess messaging.Session, data json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithFields(logrus.Fields{
				"event":   event,
				"user_id": sess.UserID,
				"panic":   p,
			}).Error("recovered from handler panic")
			err = apperrors.Internal(fmt.Errorf("panic: %v", p))
		}
	}()
	return handler(ctx, sess, data)
}

func (r *Router) fail(sess messaging.Session, event string, err error) {
	appErr := apperrors.As(err)
	entry := r.log.WithFields(logrus.Fields{
		"event":   event,
		"user_id": sess.UserID,
		"code":    appErr.Code,
	})
	if appErr.Err != nil {
		entry = entry.WithError(appErr.Err)
	}
	entry.Warn("event failed")

	sess.Conn.Send(models.OperationError{
		RequestID: sess.RequestID,
		Event:     event,
		Code:      string(appErr.Code),
		Message:   appErr.Message,
	})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperrors.New(apperrors.InvalidPayload, "Missing event data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrap(apperrors.InvalidPayload, "Malformed event data", err)
	}
	return nil
}

func (r *Router) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.New(apperrors.InvalidPayload, "Message content is required")
	}
	if r.maxContentLen > 0 && utf8.RuneCountInString(content) > r.maxContentLen {
		return apperrors.New(apperrors.InvalidPayload,
			fmt.Sprintf("Message content exceeds %d characters", r.maxContentLen))
	}
	return nil
}

func checkRoom(room string) error {
	if room == "" || len(room) > maxRoomLength {
		return apperrors.New(apperrors.InvalidPayload, "Invalid group")
	}
	return nil
}

func (r *Router) sendDirectMessage(ctx context.Context, sess messaging.Session, data json.RawMessage) error {
	var p directMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if !conversation.ValidUserID(p.Recipient) {
		return apperrors.New(apperrors.InvalidPayload, "Invalid recipient")
	}
	if err := r.checkContent(p.Content); err != nil {
		return err
	}
	_, err := r.messenger.SendDirectMessage(ctx, sess, p.Recipient, p.Content)
	return err
}

func (r *Router) sendGroupMessage(ctx context.Context, sess messaging.Session, data json.RawMessage) error {
	var p groupMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if err := checkRoom(p.Group); err != nil {
		return err
	}
	if err := r.checkContent(p.Content); err != nil {
		return err
	}
	_, err := r.messenger.SendGroupMessage(ctx, sess, p.Group, p.Content)
	return err
}

func (r *Router) joinRoom(ctx context.Context, sess messaging.Session, data json.RawMessage) error {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if err := checkRoom(p.Room); err != nil {
		return err
	}
	return r.messenger.JoinRoom(ctx, sess, p.Room)
}

func (r *Router) leaveRoom(ctx context.Context, sess messaging.Session, data json.RawMessage) error {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if err := checkRoom(p.Room); err != nil {
		return err
	}
	return r.messenger.LeaveRoom(ctx, sess, p.Room)
}

// ping answers on the originating connection only. Data is optional.
func (r *Router) ping(ctx context.Context, sess messaging.Session, data json.RawMessage) error {
	var p pingPayload
	if len(data) > 0 {
		if err := decode(data, &p); err != nil {
			return err
		}
	}
	sess.Conn.Send(models.Pong{RequestID: sess.RequestID, Payload: p.Payload})
	return nil
}
