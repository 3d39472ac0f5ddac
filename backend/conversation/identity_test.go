// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efrelay/backend/apperrors"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	ids := []string{"u1", "u2", "64f1c0a9e2", "A-b", "z", "0"}
	for _, a := range ids {
		for _, b := range ids {
			assert.Equal(t, DirectKey(a, b), DirectKey(b, a), "%s/%s", a, b)
		}
	}
	assert.Equal(t, "u1_u2", DirectKey("u2", "u1"))
}

func TestDirectKeySelfConversation(t *testing.T) {
	assert.Equal(t, "u1", DirectKey("u1", "u1"))

	ids := []string{"u1", "u2", "u3"}
	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			for _, c := range ids {
				assert.NotEqual(t, DirectKey(c, c), DirectKey(a, b))
			}
		}
	}
}

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("64f1c0a9e2b3"))
	assert.True(t, ValidUserID("6f9619ff-8b86-d011-b42d-00cf4fc964ff"))
	assert.False(t, ValidUserID(""))
	assert.False(t, ValidUserID("a_b"))
	assert.False(t, ValidUserID("a b"))
	assert.False(t, ValidUserID(strings.Repeat("a", 65)))
}

func TestValidateGroupParticipants(t *testing.T) {
	participants, err := ValidateGroupParticipants([]string{"u2", "u3"}, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, participants)
}

func TestValidateGroupParticipantsRejectsDuplicates(t *testing.T) {
	_, err := ValidateGroupParticipants([]string{"u2", "u3", "u2"}, "u1", 10)
	assert.True(t, apperrors.Is(err, apperrors.DuplicateParticipant))

	// The requester is added implicitly, listing it again is a duplicate.
	_, err = ValidateGroupParticipants([]string{"u2", "u1"}, "u1", 10)
	assert.True(t, apperrors.Is(err, apperrors.DuplicateParticipant))
}

func TestValidateGroupParticipantsEnforcesBound(t *testing.T) {
	_, err := ValidateGroupParticipants([]string{"u2", "u3"}, "u1", 3)
	assert.NoError(t, err)

	_, err = ValidateGroupParticipants([]string{"u2", "u3", "u4"}, "u1", 3)
	assert.True(t, apperrors.Is(err, apperrors.ParticipantCountExceeded))

	_, err = ValidateGroupParticipants([]string{"u2", "u3", "u4"}, "u1", 0)
	assert.NoError(t, err)
}

func TestNewGroupToken(t *testing.T) {
	token := NewGroupToken("Weekend Hiking  Crew!")
	assert.True(t, strings.HasPrefix(token, "weekend_hiking_crew."), token)

	assert.NotContains(t, DirectKey("weekend", "hiking"), GroupTokenSeparator)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tok := NewGroupToken("same name")
		_, dup := seen[tok]
		require.False(t, dup)
		seen[tok] = struct{}{}
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "group", Slug("   "))
	assert.Equal(t, "group", Slug("!!!"))
	assert.Equal(t, "dev-ops_team", Slug("Dev-Ops Team"))
	assert.Len(t, Slug(strings.Repeat("abcd", 20)), maxSlugLength)
}
