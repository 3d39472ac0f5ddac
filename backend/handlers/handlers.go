// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package handlers holds the REST wrappers around conversation history,
// group creation and direct conversation set-up.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/messaging"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/models"
)

// ConversationService is the part of the messaging service exposed over REST
type ConversationService interface {
	CreateGroup(ctx context.Context, creatorID string, req messaging.CreateGroupRequest) (*models.Conversation, error)
	OpenDirect(ctx context.Context, userID, otherID string) (*models.Conversation, error)
	DirectHistory(ctx context.Context, userID, otherID string, pageSize, pageNumber int) (*models.Conversation, error)
	GroupHistory(ctx context.Context, userID, groupID string, pageSize, pageNumber int) (*models.Conversation, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireUser returns the authenticated user, answering 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == "" {
		middleware.WriteError(w, apperrors.New(apperrors.AuthenticationMissing, "No authorization credential"))
		return "", false
	}
	return userID, true
}

// pageParams reads size and page; missing or invalid values become zero and
// are defaulted by the store.
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	size, _ := strconv.Atoi(q.Get("size"))
	page, _ := strconv.Atoi(q.Get("page"))
	return size, page
}
