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
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/presence"
)

var _ presence.Conn = (*Connection)(nil)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024
)

// Connection is one live websocket. Outbound events are queued on a
// bounded buffer drained by writeLoop; a full buffer closes the connection.
type Connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	log    *logrus.Entry

	send      chan models.OutboundEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, id, userID string, buffer int, log *logrus.Entry) *Connection {
	if buffer < 1 {
		buffer = 1
	}
	return &Connection{
		id:     id,
		userID: userID,
		ws:     ws,
		log:    log.WithFields(logrus.Fields{"conn_id": id, "user_id": userID}),
		send:   make(chan models.OutboundEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Send queues event without blocking. It reports false once the connection
// is closed, or when the buffer is full, in which case the connection is
// closed as a slow consumer.
func (c *Connection) Send(event models.OutboundEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		c.log.Warn("send buffer full, closing slow consumer")
		c.abort()
		return false
	}
}

// Done is closed when the connection closes
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close is safe to call more than once and from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.ws.Close()
	})
}

// abort drops the socket without a close frame. It never waits on the
// websocket write lock, which writeLoop may hold while stuck on a stalled peer.
func (c *Connection) abort() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// readLoop hands every text frame to handle until the peer goes away or the
// connection is closed.
func (c *Connection) readLoop(handle func(payload []byte)) {
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.WithError(err).Info("connection closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(payload)
	}
}

// writeLoop is the only writer of data frames on ws.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			frame, err := encodeFrame(event)
			if err != nil {
				c.log.WithError(err).Error("failed to encode event")
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
