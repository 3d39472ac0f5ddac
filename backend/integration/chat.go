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

package integration

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/efchatnet/efrelay/backend/config"
	"github.com/efchatnet/efrelay/backend/gateway"
	"github.com/efchatnet/efrelay/backend/handlers"
	"github.com/efchatnet/efrelay/backend/handshake"
	"github.com/efchatnet/efrelay/backend/messaging"
	"github.com/efchatnet/efrelay/backend/middleware"
	"github.com/efchatnet/efrelay/backend/presence"
	"github.com/efchatnet/efrelay/backend/storage"
	"github.com/efchatnet/efrelay/backend/storage/postgres"
	redisstore "github.com/efchatnet/efrelay/backend/storage/redis"
)

// ChatIntegration provides the realtime messaging core as a plugin for efchat
type ChatIntegration struct {
	store         storage.Store
	verifier      *middleware.Verifier
	authenticator *handshake.Authenticator
	registry      *presence.Registry
	rooms         *presence.Rooms
	service       *messaging.Service
	gateway       *gateway.Server
	groupHandler  *handlers.GroupHandler
	directHandler *handlers.DirectHandler
	healthHandler *handlers.HealthHandler
	settings      config.Config
}

// Config holds configuration for the chat integration. Store and
// Revocations, when set, replace the Postgres and Redis backed stores.
type Config struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	Store       storage.Store
	Revocations storage.TokenRevocations
	Settings    config.Config
	Log         *logrus.Entry
}

// NewChatIntegration creates a new chat integration that can be embedded into efchat
func NewChatIntegration(ctx context.Context, cfg *Config) (*ChatIntegration, error) {
	if cfg.Settings.JWTSecret == "" {
		return nil, &ValidationError{Message: "JWT secret is not configured"}
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	deps := make(map[string]handlers.Pinger)

	store := cfg.Store
	if store == nil {
		if cfg.DB == nil {
			return nil, &ValidationError{Message: "either a database or a store is required"}
		}
		pg := postgres.NewStore(cfg.DB)
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		store = pg
		deps["database"] = pg
	}

	revocations := cfg.Revocations
	if revocations == nil {
		if cfg.Redis == nil {
			return nil, &ValidationError{Message: "either a redis client or a revocation store is required"}
		}
		rs := redisstore.NewRevocationStore(cfg.Redis)
		revocations = rs
		deps["redis"] = rs
	}

	verifier := middleware.NewVerifier(middleware.JWTConfig{
		Secret:       cfg.Settings.JWTSecret,
		SystemSecret: cfg.Settings.JWTSystemSecret,
		Issuer:       cfg.Settings.JWTIssuer,
	})
	authenticator := handshake.NewAuthenticator(verifier, revocations, store, log)
	registry := presence.NewRegistry()
	rooms := presence.NewRooms()
	service := messaging.NewService(store, store, registry, rooms, cfg.Settings.MaxGroupSize, log)

	return &ChatIntegration{
		store:         store,
		verifier:      verifier,
		authenticator: authenticator,
		registry:      registry,
		rooms:         rooms,
		service:       service,
		gateway: gateway.NewServer(gateway.ServerConfig{
			Authenticator:  authenticator,
			Registry:       registry,
			Rooms:          rooms,
			Router:         gateway.NewRouter(service, cfg.Settings.MaxMessageLength, log),
			AllowedOrigins: cfg.Settings.AllowedOrigins,
			SendBuffer:     cfg.Settings.SendBuffer,
			Log:            log,
		}),
		groupHandler:  handlers.NewGroupHandler(service),
		directHandler: handlers.NewDirectHandler(service),
		healthHandler: handlers.NewHealthHandler(deps),
		settings:      cfg.Settings,
	}, nil
}

// RegisterRoutes adds chat routes to an existing router
// If authMiddleware is nil, it will use the built-in handshake checks
func (c *ChatIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	// No auth required
	router.HandleFunc("/health", c.healthHandler.Health).Methods("GET")

	// The websocket runs its own handshake before upgrading
	router.HandleFunc("/ws", c.gateway.HandleWebsocket).Methods("GET")

	api := router.PathPrefix("/api/chat").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(c.authenticator.AuthenticateRequest))
	}

	// Direct conversation endpoints
	api.HandleFunc("/direct/{userId}", c.directHandler.OpenDirect).Methods("POST", "OPTIONS")
	api.HandleFunc("/direct/{userId}", c.directHandler.GetDirect).Methods("GET", "OPTIONS")

	// Group endpoints
	api.HandleFunc("/group", c.groupHandler.CreateGroup).Methods("POST", "OPTIONS")
	api.HandleFunc("/group/{groupId}", c.groupHandler.GetGroup).Methods("GET", "OPTIONS")
}

// Shutdown closes every open websocket
func (c *ChatIntegration) Shutdown(ctx context.Context) error {
	return c.gateway.Shutdown(ctx)
}

// GetStore returns the underlying storage implementation
func (c *ChatIntegration) GetStore() storage.Store {
	return c.store
}

func (c *ChatIntegration) GetService() *messaging.Service {
	return c.service
}

func (c *ChatIntegration) GetVerifier() *middleware.Verifier {
	return c.verifier
}

// IsOnline reports whether userID has an open connection
func (c *ChatIntegration) IsOnline(userID string) bool {
	return c.registry.IsOnline(userID)
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
