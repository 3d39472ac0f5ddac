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

// Package gateway terminates websocket connections: it runs the handshake,
// owns the per-connection read and write loops and routes inbound events.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/handshake"
	"github.com/efchatnet/efrelay/backend/messaging"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/presence"
)

// Authenticator runs the connection handshake checks
type Authenticator interface {
	Authenticate(ctx context.Context, rawCredential string) (*handshake.Identity, error)
}

type ServerConfig struct {
	Authenticator  Authenticator
	Registry       *presence.Registry
	Rooms          *presence.Rooms
	Router         *Router
	AllowedOrigins []string
	SendBuffer     int
	Log            *logrus.Entry
}

type Server struct {
	auth       Authenticator
	registry   *presence.Registry
	rooms      *presence.Rooms
	router     *Router
	upgrader   websocket.Upgrader
	sendBuffer int
	log        *logrus.Entry

	mu    sync.Mutex
	conns map[string]*Connection
	wg    sync.WaitGroup
}

func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		auth:       cfg.Authenticator,
		registry:   cfg.Registry,
		rooms:      cfg.Rooms,
		router:     cfg.Router,
		sendBuffer: cfg.SendBuffer,
		log:        cfg.Log.WithField("component", "gateway"),
		conns:      make(map[string]*Connection),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(cfg.AllowedOrigins, origin)
		},
	}
	return s
}

// HandleWebsocket authenticates the request and upgrades it. A failed
// handshake is answered with an HTTP error and never reaches the registry.
func (s *Server) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r.Context(), middleware.CredentialFromRequest(r))
	if err != nil {
		s.log.WithError(err).WithField("remote_addr", r.RemoteAddr).Info("handshake rejected")
		middleware.WriteError(w, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("user_id", identity.UserID).Warn("websocket upgrade failed")
		return
	}

	conn := newConnection(ws, uuid.New().String(), identity.UserID, s.sendBuffer, s.log)
	sess := messaging.Session{
		UserID:      identity.UserID,
		DisplayName: identity.User.DisplayName,
		Conn:        conn,
	}

	s.track(conn)
	s.registry.Connect(identity.UserID, conn)
	conn.log.Info("connection opened")

	s.wg.Add(1)
	go s.serve(conn, sess)
}

func (s *Server) serve(conn *Connection, sess messaging.Session) {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go conn.writeLoop()
	conn.readLoop(func(payload []byte) {
		s.router.Dispatch(ctx, sess, payload)
	})
	s.disconnect(conn)
}

// disconnect runs once per connection, after its read loop has ended.
func (s *Server) disconnect(conn *Connection) {
	conn.Close()
	s.rooms.UnsubscribeAll(conn)
	s.untrack(conn)

	if s.registry.Disconnect(conn.UserID(), conn) {
		conn.log.Info("user offline")
	}
	conn.log.Info("connection closed")
}

func (s *Server) track(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.ID()] = conn
}

func (s *Server) untrack(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.ID())
}

// ConnectionCount returns the number of open connections
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every open connection and waits for their disconnect
// handling to finish, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	open := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		go c.Close()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
