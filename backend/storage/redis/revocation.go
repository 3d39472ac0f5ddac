// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efrelay/backend/storage"
)

var _ storage.TokenRevocations = (*RevocationStore)(nil)

const (
	// Redis key prefixes
	revokedTokenPrefix = "token:revoked:" // token:revoked:{jti} - present while revoked

	// Used when the credential expiry is unknown
	DefaultRevocationTTL = 7 * 24 * time.Hour
)

// RevocationStore tracks revoked credential identifiers. Entries expire with
// the credential they revoke, so the key space stays bounded.
type RevocationStore struct {
	rdb redis.UniversalClient
}

func NewRevocationStore(rdb redis.UniversalClient) *RevocationStore {
	return &RevocationStore{rdb: rdb}
}

func revokedKey(tokenID string) string {
	return revokedTokenPrefix + tokenID
}

// IsRevoked reports whether the token identifier has been revoked
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// Revoke marks tokenID as revoked until expiresAt. A zero or past expiry
// falls back to DefaultRevocationTTL.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if expiresAt.IsZero() || ttl <= 0 {
		ttl = DefaultRevocationTTL
	}
	if err := s.rdb.Set(ctx, revokedKey(tokenID), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Ping checks the redis connection
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
