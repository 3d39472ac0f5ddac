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

// Package conversation computes conversation identities.
//
// Direct conversations are keyed by their participants, group conversations
// by a token allocated once at creation. Both are immutable afterwards.
package conversation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/efchatnet/efrelay/backend/apperrors"
)

// KeySeparator joins the two identities of a direct key. Valid user
// identities never contain it, so a self key can never equal a pair key.
const KeySeparator = "_"

// GroupTokenSeparator joins the slug and suffix of a group token. It never
// appears in a direct key, so group and direct identities are disjoint.
const GroupTokenSeparator = "."

const maxSlugLength = 48

var (
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)
	slugStrip     = regexp.MustCompile(`[^a-z0-9_-]+`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// ValidUserID reports whether id is a well-formed user identity.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// DirectKey returns the canonical identity of the direct conversation
// between a and b. The result does not depend on argument order; a == b
// yields the self conversation keyed by a alone.
func DirectKey(a, b string) string {
	if a == b {
		return a
	}
	if a > b {
		a, b = b, a
	}
	return a + KeySeparator + b
}

// ValidateGroupParticipants checks the invitee list of a new group and
// returns the full participant set, the requester first. maxSize bounds
// the resulting set including the requester; zero disables the bound.
func ValidateGroupParticipants(candidates []string, requester string, maxSize int) ([]string, error) {
	seen := make(map[string]struct{}, len(candidates)+1)
	seen[requester] = struct{}{}

	participants := make([]string, 0, len(candidates)+1)
	participants = append(participants, requester)

	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			return nil, apperrors.New(apperrors.DuplicateParticipant,
				fmt.Sprintf("Duplicate participant %q", id))
		}
		seen[id] = struct{}{}
		participants = append(participants, id)
	}

	if maxSize > 0 && len(participants) > maxSize {
		return nil, apperrors.New(apperrors.ParticipantCountExceeded,
			fmt.Sprintf("A group may have at most %d participants", maxSize))
	}
	return participants, nil
}

// NewGroupToken allocates a group identity: a slug of the display name
// followed by a random 128-bit suffix.
func NewGroupToken(displayName string) string {
	return Slug(displayName) + GroupTokenSeparator + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Slug lowercases name, turns whitespace runs into "_" and drops anything
// outside [a-z0-9_-]. An empty result becomes "group".
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespace.ReplaceAllString(s, "_")
	s = slugStrip.ReplaceAllString(s, "")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	s = strings.Trim(s, "_-")
	if s == "" {
		return "group"
	}
	return s
}
