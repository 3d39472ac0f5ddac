// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsConvertsForeignErrors(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := As(cause)

	assert.Equal(t, InternalError, appErr.Code)
	assert.Equal(t, "Internal server error", appErr.Message)
	assert.ErrorIs(t, appErr, cause)
}

func TestAsFindsWrappedApplicationError(t *testing.T) {
	err := fmt.Errorf("send: %w", New(GroupNotFound, "Group chat does not exist"))

	assert.Equal(t, GroupNotFound, CodeOf(err))
	assert.True(t, Is(err, GroupNotFound))
	assert.False(t, Is(err, InternalError))
}

func TestCodeOfNil(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Nil(t, As(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		AuthenticationMissing:    http.StatusUnauthorized,
		CredentialStale:          http.StatusUnauthorized,
		NotAuthorizedToMessage:   http.StatusForbidden,
		GroupNotFound:            http.StatusNotFound,
		ParticipantCountExceeded: http.StatusBadRequest,
		InternalError:            http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(code, "x")), string(code))
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestErrorString(t *testing.T) {
	err := Wrap(AuthenticationInvalid, "Invalid login credentials", errors.New("token is expired"))
	assert.Equal(t, "AuthenticationInvalid: Invalid login credentials: token is expired", err.Error())
	assert.Equal(t, "UserNotFound: User does not exist", New(UserNotFound, "User does not exist").Error())
}
