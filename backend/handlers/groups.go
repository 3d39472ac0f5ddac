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

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/messaging"
	"github.com/efchatnet/efrelay/backend/middleware"
)

type GroupHandler struct {
	service ConversationService
}

func NewGroupHandler(service ConversationService) *GroupHandler {
	return &GroupHandler{service: service}
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req messaging.CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperrors.Wrap(apperrors.InvalidPayload, "Invalid group request", err))
		return
	}

	conv, err := h.service.CreateGroup(r.Context(), userID, req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]

	size, page := pageParams(r)
	conv, err := h.service.GroupHistory(r.Context(), userID, groupID, size, page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
