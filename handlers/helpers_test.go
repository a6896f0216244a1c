// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianChat/datatypes"
	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/middleware"
	"github.com/AleutianAI/AleutianChat/observability"
	"github.com/AleutianAI/AleutianChat/sessioncache"
	"github.com/AleutianAI/AleutianChat/supabase"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeSession is a scriptable supabase.Session.
type fakeSession struct {
	mu sync.Mutex

	userID        string
	summaries     []datatypes.ConversationSummary
	histories     map[int64][]datatypes.Envelope
	updatedAt     string
	entities      map[string]map[string]any
	signOutCalled bool

	savedRequests []supabase.SaveHistoryRequest
	saveErr       error
	loadErr       error
	listErr       error
}

func newFakeSession(userID string) *fakeSession {
	return &fakeSession{
		userID:    userID,
		histories: map[int64][]datatypes.Envelope{},
		entities:  map[string]map[string]any{},
	}
}

func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalled = true
	return nil
}

func (f *fakeSession) ListConversations(ctx context.Context, userID string) ([]datatypes.ConversationSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.summaries, nil
}

func (f *fakeSession) LoadHistory(ctx context.Context, conversationID int64) ([]datatypes.Envelope, string, error) {
	if f.loadErr != nil {
		return nil, "", f.loadErr
	}
	history, ok := f.histories[conversationID]
	if !ok {
		return nil, "", nil
	}
	return history, f.updatedAt, nil
}

func (f *fakeSession) SaveHistory(ctx context.Context, req supabase.SaveHistoryRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.savedRequests = append(f.savedRequests, req)
	if req.ConversationID != nil {
		return *req.ConversationID, nil
	}
	return int64(len(f.savedRequests)), nil
}

func (f *fakeSession) saved() []supabase.SaveHistoryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]supabase.SaveHistoryRequest(nil), f.savedRequests...)
}

func (f *fakeSession) GetEntity(ctx context.Context, kind, name string) (map[string]any, bool, error) {
	row, ok := f.entities[kind+"/"+name]
	return row, ok, nil
}

func (f *fakeSession) SaveEntity(ctx context.Context, kind, name string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[kind+"/"+name] = payload
	return nil
}

// scriptedLLM replays fixed completions.
type scriptedLLM struct {
	mu          sync.Mutex
	completions []*llm.Completion
	err         error
}

func (c *scriptedLLM) Chat(ctx context.Context, model string, messages []llm.Message,
	tools []llm.ToolDef, params llm.GenerationParams) (*llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if len(c.completions) == 0 {
		return nil, fmt.Errorf("scripted llm ran out of completions")
	}
	next := c.completions[0]
	c.completions = c.completions[1:]
	return next, nil
}

func newTestCache() *middleware.SessionCache {
	return sessioncache.New[supabase.Session](time.Hour, nil)
}

func newTestMetrics() *observability.ChatMetrics {
	return observability.NewMetricsWithRegistry(prometheus.NewRegistry())
}
