// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package supabase wraps the hosted authentication and row-storage backend.
//
// # Description
//
// Manager holds one authenticated client per signed-in user. Its only
// contract beyond pass-through is uniform error translation: every failure
// the hosted backend reports for credentials or tokens surfaces as an
// apperrors.ErrUnauthorized-wrapped error, storage failures are wrapped with
// context and returned as-is.
//
// The Session interface is what the handlers depend on, so tests can inject
// fakes without a hosted backend.
package supabase

import (
	"context"
	"time"

	"github.com/supabase-community/gotrue-go/types"
	supa "github.com/supabase-community/supabase-go"

	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/datatypes"
)

// Session is the authenticated view of the hosted backend that handlers and
// agents operate on. *Manager is the production implementation.
type Session interface {
	// UserID returns the signed-in user's id, or "" when unauthenticated.
	UserID() string

	// SignOut invalidates the hosted session.
	SignOut(ctx context.Context) error

	// ListConversations returns the user's conversations ordered
	// most-recently-updated first.
	ListConversations(ctx context.Context, userID string) ([]datatypes.ConversationSummary, error)

	// LoadHistory returns the stored message history for a conversation,
	// with the row's updated_at for conflict detection on a later save.
	// Both are empty when the conversation does not exist.
	LoadHistory(ctx context.Context, conversationID int64) ([]datatypes.Envelope, string, error)

	// SaveHistory persists a full-history snapshot and returns the row id.
	SaveHistory(ctx context.Context, req SaveHistoryRequest) (int64, error)

	// GetEntity fetches a generic entity row by kind and name.
	GetEntity(ctx context.Context, kind, name string) (map[string]any, bool, error)

	// SaveEntity upserts a generic entity row by kind and name.
	SaveEntity(ctx context.Context, kind, name string, payload map[string]any) error
}

// Tokens is the result of a successful sign-in or refresh.
type Tokens struct {
	UserID       string
	AccessToken  string
	RefreshToken string

	// ExpiresIn is the access token lifetime reported by the backend; the
	// session cache uses it as the entry TTL.
	ExpiresIn time.Duration
}

// Manager wraps one hosted-backend client instance.
type Manager struct {
	client  *supa.Client
	session *types.Session

	// now is the clock used for updated_at stamps; overridable in tests.
	now func() time.Time

	// onConflict observes lost-update conflicts detected by SaveHistory.
	onConflict func(conversationID int64)
}

// NewManager constructs an unauthenticated Manager against the project URL
// and anon key. Sign in (or assert a session) before using authenticated
// operations.
func NewManager(url, anonKey string) (*Manager, error) {
	client, err := supa.NewClient(url, anonKey, &supa.ClientOptions{})
	if err != nil {
		return nil, apperrors.Unauthorized("failed to create hosted backend client: %v", err)
	}
	return &Manager{client: client, now: time.Now}, nil
}

// OnConflict registers a callback for lost-update conflicts. Must be set
// before the manager is shared.
func (m *Manager) OnConflict(fn func(conversationID int64)) {
	m.onConflict = fn
}

// SignInWithPassword authenticates with email and password.
//
// # Outputs
//
//   - Tokens: The user id, access token, refresh token, and token lifetime.
//   - error: apperrors.ErrUnauthorized-wrapped on bad credentials.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (Tokens, error) {
	session, err := m.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return Tokens{}, apperrors.Unauthorized("sign in failed: %v", err)
	}
	m.session = &session
	return tokensFrom(session), nil
}

// RefreshAccessToken exchanges a refresh token for a new session.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (Tokens, error) {
	session, err := m.client.RefreshToken(refreshToken)
	if err != nil {
		return Tokens{}, apperrors.Unauthorized("token refresh failed: %v", err)
	}
	m.session = &session
	return tokensFrom(session), nil
}

// AssertSession verifies that the backend can resolve a user for the given
// access token.
func (m *Manager) AssertSession(ctx context.Context, accessToken string) error {
	resp, err := m.client.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return apperrors.Unauthorized("invalid or expired token: %v", err)
	}
	if resp == nil {
		return apperrors.Unauthorized("invalid or expired token")
	}
	return nil
}

// UserID implements Session.
func (m *Manager) UserID() string {
	if m.session == nil {
		return ""
	}
	return m.session.User.ID.String()
}

// SignOut implements Session.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.session == nil {
		return apperrors.Unauthorized("no active session")
	}
	if err := m.client.Auth.WithToken(m.session.AccessToken).Logout(); err != nil {
		return apperrors.Unauthorized("sign out failed: %v", err)
	}
	m.session = nil
	return nil
}

func tokensFrom(session types.Session) Tokens {
	return Tokens{
		UserID:       session.User.ID.String(),
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    time.Duration(session.ExpiresIn) * time.Second,
	}
}
