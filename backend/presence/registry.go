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

// Package presence tracks which users are reachable and through which
// live connections.
package presence

import (
	"sync"

	"github.com/efchatnet/efrelay/backend/models"
)

// Conn is a live connection handle. Send must not block; it reports false
// when the event could not be queued.
type Conn interface {
	ID() string
	UserID() string
	Send(event models.OutboundEvent) bool
}

// Registry maps user identities to their open connections. A user has an
// entry if and only if at least one handle is registered for it.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]Conn // userID -> connID -> handle
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]Conn)}
}

// Register adds c to userID's entry. Registering the same handle twice is a
// no-op. It reports whether this was the user's first open connection.
func (r *Registry) Register(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(userID, c)
}

func (r *Registry) register(userID string, c Conn) bool {
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]Conn)
		r.users[userID] = conns
	}
	conns[c.ID()] = c
	return !ok
}

// Deregister removes c from userID's entry and drops the entry once it is
// empty. It reports true only for the call that removed the user's last
// handle, so repeated calls for the same handle are safe.
func (r *Registry) Deregister(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deregister(userID, c)
}

func (r *Registry) deregister(userID string, c Conn) bool {
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[c.ID()]; !ok {
		return false
	}
	delete(conns, c.ID())
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// Connect registers c and, when it is the user's first connection, delivers
// an online presence change to every other user's handles before releasing
// the registry. A transition and its announcement are therefore never
// reordered against the next transition for the same user.
func (r *Registry) Connect(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.register(userID, c) {
		return false
	}
	Deliver(r.targetsLocked(userID), models.PresenceChanged{UserID: userID, Online: true})
	return true
}

// Disconnect deregisters c and, when it was the user's last connection,
// delivers the offline presence change under the same lock as Connect.
func (r *Registry) Disconnect(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.deregister(userID, c) {
		return false
	}
	Deliver(r.targetsLocked(userID), models.PresenceChanged{UserID: userID, Online: false})
	return true
}

// ConnectionsFor returns a snapshot of userID's handles, empty when offline.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	result := make([]Conn, 0, len(conns))
	for _, c := range conns {
		result = append(result, c)
	}
	return result
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// Broadcast sends event to every registered handle except those of
// exceptUserID and returns the number of handles that accepted it.
func (r *Registry) Broadcast(event models.OutboundEvent, exceptUserID string) int {
	r.mu.RLock()
	targets := r.targetsLocked(exceptUserID)
	r.mu.RUnlock()

	return Deliver(targets, event)
}

// targetsLocked snapshots every handle not owned by exceptUserID. r.mu must be held.
func (r *Registry) targetsLocked(exceptUserID string) []Conn {
	targets := make([]Conn, 0, len(r.users))
	for userID, conns := range r.users {
		if userID == exceptUserID {
			continue
		}
		for _, c := range conns {
			targets = append(targets, c)
		}
	}
	return targets
}

// Deliver sends event to each handle. A handle that refuses it does not
// stop delivery to the rest.
func Deliver(conns []Conn, event models.OutboundEvent) int {
	delivered := 0
	for _, c := range conns {
		if c.Send(event) {
			delivered++
		}
	}
	return delivered
}
