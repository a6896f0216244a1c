// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the process-wide settings from the environment.
//
// # Description
//
// Settings is read once at startup and treated as immutable afterwards.
// Every credential the service depends on (hosted backend, LLM providers,
// graph database) is validated here so that a missing value fails process
// startup rather than the first request that needs it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings holds the environment-sourced configuration.
//
// # Fields
//
//   - SupabaseURL / SupabaseAnonKey: hosted backend project URL and anon key.
//   - SupabaseDevEmail / SupabaseDevPassword: dev account signed in at startup
//     for the character chat endpoint.
//   - OpenAIAPIKey: used by the tool-calling agents and the graph embedder.
//   - GeminiAPIKey: used by the plain websocket chat agent.
//   - AnthropicAPIKey: optional, reserved for a future backend.
//   - TavilyAPIKey: optional; the web search tool is disabled when empty.
//   - Neo4jURI / Neo4jAuth: graph database bolt URI and password for the
//     "neo4j" user.
//   - Port: HTTP listen port.
//   - SessionTTL: fallback lifetime for session cache entries when the hosted
//     backend does not report an expiry.
//   - ProfileCachePath: directory for the on-disk character profile cache.
type Settings struct {
	SupabaseURL         string `validate:"required,url"`
	SupabaseAnonKey     string `validate:"required"`
	SupabaseDevEmail    string `validate:"required,email"`
	SupabaseDevPassword string `validate:"required"`

	OpenAIAPIKey    string `validate:"required"`
	GeminiAPIKey    string `validate:"required"`
	AnthropicAPIKey string
	TavilyAPIKey    string

	Neo4jURI  string `validate:"required"`
	Neo4jAuth string `validate:"required"`

	Port             string
	SessionTTL       time.Duration
	ProfileCachePath string
}

// Load reads Settings from the environment and validates them.
//
// # Outputs
//
//   - *Settings: Immutable configuration, ready for injection.
//   - error: Non-nil when a required value is missing or malformed. The
//     caller is expected to exit the process.
func Load() (*Settings, error) {
	s := &Settings{
		SupabaseURL:         os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:     os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseDevEmail:    os.Getenv("SUPABASE_DEV_EMAIL"),
		SupabaseDevPassword: os.Getenv("SUPABASE_DEV_PASSWORD"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		TavilyAPIKey:        os.Getenv("TAVILY_API_KEY"),
		Neo4jURI:            os.Getenv("NEO4J_URI"),
		Neo4jAuth:           os.Getenv("NEO4J_AUTH"),
		Port:                getEnv("PORT", "12310"),
		SessionTTL:          time.Hour,
		ProfileCachePath:    getEnv("PROFILE_CACHE_PATH", "/tmp/aleutianchat/profiles"),
	}

	if raw := os.Getenv("SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL %q: %w", raw, err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("SESSION_TTL must be positive, got %q", raw)
		}
		s.SessionTTL = ttl
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
