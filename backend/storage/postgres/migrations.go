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

package postgres

import "context"

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Users are owned by the host application; the relay only reads them
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(64) PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			credentials_changed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per direction; user_id lists friend_id as a friend
		`CREATE TABLE IF NOT EXISTS friendships (
			user_id VARCHAR(64) NOT NULL,
			friend_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, friend_id)
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id VARCHAR(255) PRIMARY KEY,
			kind VARCHAR(10) NOT NULL CHECK (kind IN ('direct', 'group')),
			group_name VARCHAR(5000),
			group_image TEXT,
			created_by VARCHAR(64) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// seq keeps participants in the order they were added
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			seq BIGSERIAL,
			conversation_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,

		// Index for finding a user's conversations
		`CREATE INDEX IF NOT EXISTS idx_participant_conversations
		ON conversation_participants(user_id, conversation_id)`,

		// seq gives a total append order independent of clock resolution
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			seq BIGSERIAL PRIMARY KEY,
			message_id VARCHAR(64) NOT NULL UNIQUE,
			conversation_id VARCHAR(255) NOT NULL,
			sender_id VARCHAR(64) NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
		)`,

		// Create index for trailing window reads
		`CREATE INDEX IF NOT EXISTS idx_conversation_messages
		ON conversation_messages(conversation_id, seq DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
