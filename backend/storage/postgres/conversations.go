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
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

func (s *Store) GetOrCreateDirect(ctx context.Context, conversationID, participantA, participantB string) (*models.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := createDirect(ctx, tx, conversationID, participantA, participantB); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, conversationID)
}

func (s *Store) AppendDirectMessage(ctx context.Context, conversationID, participantA, participantB string, msg models.Message) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	created, err := createDirect(ctx, tx, conversationID, participantA, participantB)
	if err != nil {
		return false, err
	}
	if err := appendMessage(ctx, tx, conversationID, msg); err != nil {
		return false, err
	}
	return created, tx.Commit()
}

func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := appendMessage(ctx, tx, conversationID, msg); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateGroup(ctx context.Context, groupID, creatorID string, participants []string, meta models.GroupInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, kind, group_name, group_image, created_by, created_at, updated_at)
		VALUES ($1, 'group', $2, NULLIF($3, ''), $4, $5, $5)`,
		groupID, meta.Name, meta.Image, creatorID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return err
	}

	// Add the creator along with the invitees
	members := append([]string{creatorID}, participants...)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		SELECT $1::varchar, m.member, $3::timestamp
		FROM unnest($2::varchar[]) WITH ORDINALITY AS m(member, ord)
		ORDER BY m.ord
		ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		groupID, pq.Array(members), now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT kind FROM conversations
		WHERE conversation_id = $1`, groupID).Scan(&kind)
	if err == sql.ErrNoRows || (err == nil && kind != string(models.KindGroup)) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2`,
		groupID, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = $2
		WHERE conversation_id = $1`,
		groupID, time.Now().UTC())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	var kind string
	var groupName, groupImage sql.NullString
	var participants []string

	err := s.db.QueryRowContext(ctx, `
		SELECT c.conversation_id, c.kind, c.group_name, c.group_image,
		       c.created_by, c.created_at, c.updated_at,
		       ARRAY(
		           SELECT p.user_id FROM conversation_participants p
		           WHERE p.conversation_id = c.conversation_id
		           ORDER BY p.seq
		       )
		FROM conversations c
		WHERE c.conversation_id = $1
	`, conversationID).Scan(
		&conv.ConversationID, &kind, &groupName, &groupImage,
		&conv.CreatedBy, &conv.CreatedAt, &conv.UpdatedAt,
		pq.Array(&participants),
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	conv.Kind = models.ConversationKind(kind)
	conv.Participants = participants
	if conv.Kind == models.KindGroup {
		conv.Group = &models.GroupInfo{Name: groupName.String, Image: groupImage.String}
	}
	return &conv, nil
}

func (s *Store) ReadTrailingWindow(ctx context.Context, conversationID string, pageSize, pageNumber int) ([]models.Message, error) {
	pageSize, pageNumber = storage.NormalizeWindow(pageSize, pageNumber)

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, conversation_id, sender_id, content, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`,
		conversationID, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.SenderID,
			&msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(newestFirst) == 0 {
		exists, err := conversationExists(ctx, s.db, conversationID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, storage.ErrConversationNotFound
		}
	}

	messages := make([]models.Message, len(newestFirst))
	for i, msg := range newestFirst {
		messages[len(newestFirst)-1-i] = msg
	}
	return messages, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func conversationExists(ctx context.Context, q querier, conversationID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM conversations
			WHERE conversation_id = $1
		)
	`, conversationID).Scan(&exists)
	return exists, err
}

// createDirect inserts the conversation and its participants unless it
// already exists. Concurrent callers serialize on the primary key, so only
// one of them reports created.
func createDirect(ctx context.Context, tx *sql.Tx, conversationID, participantA, participantB string) (bool, error) {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, kind, created_by, created_at, updated_at)
		VALUES ($1, 'direct', $2, $3, $3)
		ON CONFLICT (conversation_id) DO NOTHING`,
		conversationID, participantA, now)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	// A self conversation yields one row; the duplicate is skipped
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		VALUES ($1, $2, $4), ($1, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		conversationID, participantA, participantB, now)
	if err != nil {
		return false, err
	}
	return true, nil
}

// appendMessage inserts msg only if its sender is a current participant.
func appendMessage(ctx context.Context, tx *sql.Tx, conversationID string, msg models.Message) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (message_id, conversation_id, sender_id, content, created_at)
		SELECT $1::varchar, $2::varchar, $3::varchar, $4::text, $5::timestamp
		WHERE EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $2::varchar AND user_id = $3::varchar
		)`,
		msg.MessageID, conversationID, msg.SenderID, msg.Content, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		exists, err := conversationExists(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrConversationNotFound
		}
		return storage.ErrNotParticipant
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = $2
		WHERE conversation_id = $1`,
		conversationID, msg.CreatedAt.UTC())
	return err
}
