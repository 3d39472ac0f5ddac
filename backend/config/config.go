// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package config reads server settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Defaults
const (
	DefaultPort             = "8082"
	DefaultDatabaseURL      = "postgres://localhost/efrelay?sslmode=disable"
	DefaultRedisAddr        = "localhost:6379"
	DefaultIssuer           = "efchat"
	DefaultMaxGroupSize     = 2001 // 2000 invitees plus the creator
	DefaultMaxMessageLength = 20000
	DefaultSendBuffer       = 32
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// ErrMissingSecret is returned when JWT_SECRET is unset
var ErrMissingSecret = errors.New("JWT_SECRET environment variable is required")

type Config struct {
	Port             string
	DatabaseURL      string
	RedisAddr        string
	JWTSecret        string
	JWTSystemSecret  string
	JWTIssuer        string
	AllowedOrigins   []string
	MaxGroupSize     int
	MaxMessageLength int
	SendBuffer       int
	LogLevel         string
	LogFormat        string
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:             stringOr(getenv("PORT"), DefaultPort),
		DatabaseURL:      stringOr(getenv("DATABASE_URL"), DefaultDatabaseURL),
		RedisAddr:        stringOr(getenv("REDIS_URL"), DefaultRedisAddr),
		JWTSecret:        getenv("JWT_SECRET"),
		JWTSystemSecret:  getenv("JWT_SYSTEM_SECRET"),
		JWTIssuer:        stringOr(getenv("JWT_ISSUER"), DefaultIssuer),
		AllowedOrigins:   splitList(getenv("ALLOWED_ORIGINS")),
		MaxGroupSize:     positiveOr(getenv("MAX_GROUP_SIZE"), DefaultMaxGroupSize),
		MaxMessageLength: positiveOr(getenv("MAX_MESSAGE_LENGTH"), DefaultMaxMessageLength),
		SendBuffer:       positiveOr(getenv("SEND_BUFFER"), DefaultSendBuffer),
		LogLevel:         stringOr(getenv("LOG_LEVEL"), DefaultLogLevel),
		LogFormat:        stringOr(getenv("LOG_FORMAT"), DefaultLogFormat),
	}
	if cfg.JWTSecret == "" {
		return cfg, ErrMissingSecret
	}
	return cfg, nil
}

func stringOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

// positiveOr parses v, falling back on anything that is not a positive integer
func positiveOr(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
