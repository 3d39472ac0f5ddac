// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"

	"github.com/efchatnet/efrelay/backend/models"
)

func (s *Store) FindUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	var changedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, email, credentials_changed_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.UserID, &user.DisplayName, &user.Email, &changedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if changedAt.Valid {
		t := changedAt.Time
		user.CredentialsChangedAt = &t
	}
	return &user, nil
}

// CanMessage reports whether the recipient lists the sender as a friend.
func (s *Store) CanMessage(ctx context.Context, senderID, recipientID string) (bool, error) {
	var allowed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE user_id = $1 AND friend_id = $2
		)
	`, recipientID, senderID).Scan(&allowed)
	return allowed, err
}
