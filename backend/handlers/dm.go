// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/efchatnet/efrelay/backend/middleware"
)

type DirectHandler struct {
	service ConversationService
}

func NewDirectHandler(service ConversationService) *DirectHandler {
	return &DirectHandler{service: service}
}

// OpenDirect gets or creates the direct conversation with {userId}
func (h *DirectHandler) OpenDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	otherID := mux.Vars(r)["userId"]

	conv, err := h.service.OpenDirect(r.Context(), userID, otherID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetDirect returns a trailing window of the direct conversation with {userId}
func (h *DirectHandler) GetDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	otherID := mux.Vars(r)["userId"]

	size, page := pageParams(r)
	conv, err := h.service.DirectHistory(r.Context(), userID, otherID, size, page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
