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

// Package apperrors defines the error codes surfaced to clients by the
// realtime gateway and the REST wrappers.
package apperrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure visible to clients.
type Code string

const (
	AuthenticationMissing    Code = "AuthenticationMissing"
	AuthenticationInvalid    Code = "AuthenticationInvalid"
	AuthenticationRevoked    Code = "AuthenticationRevoked"
	CredentialStale          Code = "CredentialStale"
	UserNotFound             Code = "UserNotFound"
	RecipientNotFound        Code = "RecipientNotFound"
	NotAuthorizedToMessage   Code = "NotAuthorizedToMessage"
	GroupNotFound            Code = "GroupNotFound"
	DuplicateParticipant     Code = "DuplicateParticipant"
	ParticipantCountExceeded Code = "ParticipantCountExceeded"
	ConversationNotFound     Code = "ConversationNotFound"
	InvalidPayload           Code = "InvalidPayload"
	InternalError            Code = "InternalError"
)

// Error is an application error carrying a client-facing code and message.
// Err, when set, is the underlying cause and is never shown to clients.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an application error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an application error around a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Internal wraps an unexpected failure. The message sent to clients is generic.
func Internal(err error) *Error {
	return &Error{Code: InternalError, Message: "Internal server error", Err: err}
}

// As returns the application error in err's chain, converting anything else
// into an InternalError.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the code of err, or InternalError for non-application errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// HTTPStatus maps an error to the status used when refusing an upgrade or
// answering a REST request.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case AuthenticationMissing, AuthenticationInvalid, AuthenticationRevoked, CredentialStale, UserNotFound:
		return http.StatusUnauthorized
	case NotAuthorizedToMessage:
		return http.StatusForbidden
	case RecipientNotFound, GroupNotFound, ConversationNotFound:
		return http.StatusNotFound
	case DuplicateParticipant, ParticipantCountExceeded, InvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
