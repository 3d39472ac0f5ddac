// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "time"

// User is the subset of the external user profile needed by the realtime core
type User struct {
	UserID               string     `json:"user_id" db:"user_id"`
	DisplayName          string     `json:"display_name" db:"display_name"`
	Email                string     `json:"email,omitempty" db:"email"`
	CredentialsChangedAt *time.Time `json:"credentials_changed_at,omitempty" db:"credentials_changed_at"`
}
