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

// Package handshake authenticates a connection before any event is
// dispatched on it.
package handshake

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/apperrors"
	"github.com/efchatnet/efrelay/backend/conversation"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/models"
	"github.com/efchatnet/efrelay/backend/storage"
)

// CredentialVerifier turns a presented credential into verified claims
type CredentialVerifier interface {
	Verify(rawCredential string) (*middleware.Claims, error)
}

// Identity is the result of a successful handshake
type Identity struct {
	UserID string
	Claims *middleware.Claims
	User   *models.User
}

type Authenticator struct {
	verifier    CredentialVerifier
	revocations storage.TokenRevocations
	users       storage.UserDirectory
	log         *logrus.Entry
}

func NewAuthenticator(verifier CredentialVerifier, revocations storage.TokenRevocations, users storage.UserDirectory, log *logrus.Entry) *Authenticator {
	return &Authenticator{
		verifier:    verifier,
		revocations: revocations,
		users:       users,
		log:         log.WithField("component", "handshake"),
	}
}

// Authenticate runs the credential checks in order. Every failure is an
// *apperrors.Error; no side effects happen before it returns.
func (a *Authenticator) Authenticate(ctx context.Context, rawCredential string) (*Identity, error) {
	if rawCredential == "" {
		return nil, apperrors.New(apperrors.AuthenticationMissing, "No authorization credential")
	}

	claims, err := a.verifier.Verify(rawCredential)
	if err != nil {
		a.log.WithError(err).Info("credential rejected")
		return nil, apperrors.Wrap(apperrors.AuthenticationInvalid, "Invalid login credentials", err)
	}
	userID := claims.Identity()
	if !conversation.ValidUserID(userID) {
		a.log.WithField("user_id", userID).Info("credential carries malformed identity")
		return nil, apperrors.New(apperrors.AuthenticationInvalid, "Invalid login credentials")
	}

	revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if revoked {
		a.log.WithFields(logrus.Fields{"user_id": userID, "jti": claims.ID}).Info("revoked credential presented")
		return nil, apperrors.New(apperrors.AuthenticationRevoked, "Credential has been revoked")
	}

	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if user == nil {
		return nil, apperrors.New(apperrors.UserNotFound, "User does not exist")
	}

	if user.CredentialsChangedAt != nil && user.CredentialsChangedAt.After(claims.IssuedAtTime()) {
		a.log.WithField("user_id", userID).Info("stale credential presented")
		return nil, apperrors.New(apperrors.CredentialStale, "Credentials changed, please log in again")
	}

	return &Identity{UserID: userID, Claims: claims, User: user}, nil
}

// AuthenticateRequest adapts Authenticate to middleware.AuthenticateFunc
func (a *Authenticator) AuthenticateRequest(ctx context.Context, rawCredential string) (string, *middleware.Claims, error) {
	identity, err := a.Authenticate(ctx, rawCredential)
	if err != nil {
		return "", nil, err
	}
	return identity.UserID, identity.Claims, nil
}
