// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supabase

import (
	"context"
)

// Factory creates one authenticated Manager per sign-in. Each user's tokens
// live on their own client instance, so concurrent users never share auth
// state.
type Factory struct {
	url        string
	anonKey    string
	onConflict func(conversationID int64)
}

// NewFactory builds a Factory for the project URL and anon key.
func NewFactory(url, anonKey string) *Factory {
	return &Factory{url: url, anonKey: anonKey}
}

// OnConflict propagates a lost-update observer to every manager the factory
// creates. Must be set before the factory is shared.
func (f *Factory) OnConflict(fn func(conversationID int64)) {
	f.onConflict = fn
}

// SignIn authenticates a fresh manager with email and password.
func (f *Factory) SignIn(ctx context.Context, email, password string) (Session, Tokens, error) {
	manager, err := f.newManager()
	if err != nil {
		return nil, Tokens{}, err
	}
	tokens, err := manager.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, Tokens{}, err
	}
	return manager, tokens, nil
}

// Refresh authenticates a fresh manager from a refresh token.
func (f *Factory) Refresh(ctx context.Context, refreshToken string) (Session, Tokens, error) {
	manager, err := f.newManager()
	if err != nil {
		return nil, Tokens{}, err
	}
	tokens, err := manager.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		return nil, Tokens{}, err
	}
	return manager, tokens, nil
}

func (f *Factory) newManager() (*Manager, error) {
	manager, err := NewManager(f.url, f.anonKey)
	if err != nil {
		return nil, err
	}
	if f.onConflict != nil {
		manager.OnConflict(f.onConflict)
	}
	return manager, nil
}
