// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package presence

import "sync"

// Rooms tracks which connections are subscribed to which group broadcast
// channels, indexed both ways so a closing connection leaves all its rooms
// in one call. Empty sets are removed.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn     // room -> connID -> handle
	conns map[string]map[string]struct{} // connID -> rooms
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[string]map[string]Conn),
		conns: make(map[string]map[string]struct{}),
	}
}

func (r *Rooms) Subscribe(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]Conn)
	}
	r.rooms[room][c.ID()] = c
	if r.conns[c.ID()] == nil {
		r.conns[c.ID()] = make(map[string]struct{})
	}
	r.conns[c.ID()][room] = struct{}{}
}

func (r *Rooms) Unsubscribe(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(room, c.ID())
}

// UnsubscribeUser removes every connection of userID from room.
func (r *Rooms) UnsubscribeUser(room, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID, c := range r.rooms[room] {
		if c.UserID() == userID {
			r.remove(room, connID)
		}
	}
}

// UnsubscribeAll removes c from every room and returns the rooms it left.
func (r *Rooms) UnsubscribeAll(c Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.conns[c.ID()]
	left := make([]string, 0, len(joined))
	for room := range joined {
		left = append(left, room)
		r.remove(room, c.ID())
	}
	return left
}

// Subscribers returns a snapshot of the handles subscribed to room.
func (r *Rooms) Subscribers(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	result := make([]Conn, 0, len(members))
	for _, c := range members {
		result = append(result, c)
	}
	return result
}

func (r *Rooms) IsSubscribed(room string, c Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][c.ID()]
	return ok
}

// remove must be called with mu held.
func (r *Rooms) remove(room, connID string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
}
