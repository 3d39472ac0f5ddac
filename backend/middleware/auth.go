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

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/efchatnet/efrelay/backend/apperrors"
)

// Scheme selects the secret a credential is verified with
type Scheme string

const (
	SchemeBearer Scheme = "Bearer"
	SchemeSystem Scheme = "System"
)

// Verification failure categories. Callers surface them uniformly but they
// are kept apart for logging.
var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrCredentialExpired   = errors.New("credential expired")
	ErrSignatureInvalid    = errors.New("credential signature invalid")
)

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Identity returns user_id, falling back to sub.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// IssuedAtTime returns the iat claim or the zero time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// JWTConfig holds the JWT configuration
type JWTConfig struct {
	Secret       string
	SystemSecret string
	Issuer       string
}

type Verifier struct {
	config JWTConfig
	now    func() time.Time
}

func NewVerifier(config JWTConfig) *Verifier {
	return &Verifier{config: config, now: time.Now}
}

func (v *Verifier) secretFor(scheme Scheme) (string, bool) {
	switch scheme {
	case SchemeBearer:
		return v.config.Secret, v.config.Secret != ""
	case SchemeSystem:
		return v.config.SystemSecret, v.config.SystemSecret != ""
	default:
		return "", false
	}
}

// Verify checks a "<Scheme> <token>" credential and returns its claims.
// Every error wraps one of the failure categories above.
func (v *Verifier) Verify(rawCredential string) (*Claims, error) {
	schemeName, token, ok := strings.Cut(strings.TrimSpace(rawCredential), " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: expected \"<scheme> <token>\"", ErrMalformedCredential)
	}
	secret, ok := v.secretFor(Scheme(schemeName))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedCredential, schemeName)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrCredentialExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	if claims.Identity() == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrMalformedCredential)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformedCredential)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat", ErrMalformedCredential)
	}
	return claims, nil
}

// Sign issues a credential for claims under the given scheme, in the form
// accepted by Verify.
func (v *Verifier) Sign(scheme Scheme, claims *Claims) (string, error) {
	secret, ok := v.secretFor(scheme)
	if !ok {
		return "", fmt.Errorf("no secret configured for scheme %q", scheme)
	}
	if claims.Issuer == "" {
		claims.Issuer = v.config.Issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", err
	}
	return string(scheme) + " " + signed, nil
}

// CredentialFromRequest reads the Authorization header, or the authorization
// query parameter for browser websocket clients that cannot set headers.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return header
	}
	return r.URL.Query().Get("authorization")
}

// AuthenticateFunc resolves a raw credential to an identity
type AuthenticateFunc func(ctx context.Context, rawCredential string) (userID string, claims *Claims, err error)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	claimsKey contextKey = "claims"
)

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticate AuthenticateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := CredentialFromRequest(r)
			if raw == "" {
				WriteError(w, apperrors.New(apperrors.AuthenticationMissing, "No authorization credential"))
				return
			}

			userID, claims, err := authenticate(r.Context(), raw)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, claims)))
		})
	}
}

// WithIdentity attaches the authenticated identity to ctx
func WithIdentity(ctx context.Context, userID string, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, claimsKey, claims)
}

// GetUserID extracts the user ID from the request context
func GetUserID(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(userIDKey).(string)
	return userID, ok
}

// GetClaims extracts the full claims from the request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	return claims, ok
}

// WriteError answers with the error's HTTP status and a JSON body holding
// its client-facing code and message.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperrors.As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(appErr))
	json.NewEncoder(w).Encode(map[string]string{
		"code":    string(appErr.Code),
		"message": appErr.Message,
	})
}

// OriginAllowed reports whether origin is listed. An empty list allows any.
func OriginAllowed(allowedOrigins []string, origin string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// CORS middleware for handling cross-origin requests
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && OriginAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
