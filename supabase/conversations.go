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
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/AleutianAI/AleutianChat/datatypes"
)

// conversationsTable holds one row per conversation. The messages column is
// an opaque full-history snapshot, not an append log: every save rewrites
// the whole blob.
const conversationsTable = "conversations"

// conversationRow mirrors the hosted table.
type conversationRow struct {
	ID        *int64 `json:"id,omitempty"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Messages  string `json:"messages"`
	UpdatedAt string `json:"updated_at"`
}

// SaveHistoryRequest carries one full-snapshot save.
//
// # Fields
//
//   - UserID / Title: Row ownership and display title.
//   - History: The complete message history; callers must never pass a tail.
//   - ConversationID: Nil inserts a new row; non-nil overwrites that row.
//   - SeenUpdatedAt: The updated_at the caller observed when it loaded the
//     history. Used for lost-update detection; empty skips the check.
type SaveHistoryRequest struct {
	UserID         string
	Title          string
	History        []datatypes.Envelope
	ConversationID *int64
	SeenUpdatedAt  string
}

// ListConversations implements Session.
func (m *Manager) ListConversations(ctx context.Context, userID string) ([]datatypes.ConversationSummary, error) {
	var summaries []datatypes.ConversationSummary
	_, err := m.client.From(conversationsTable).
		Select("id, title, updated_at", "", false).
		Eq("user_id", userID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&summaries)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return summaries, nil
}

// LoadHistory implements Session. A missing row or an empty blob yields an
// empty history, not an error.
func (m *Manager) LoadHistory(ctx context.Context, conversationID int64) ([]datatypes.Envelope, string, error) {
	var rows []conversationRow
	_, err := m.client.From(conversationsTable).
		Select("messages, updated_at", "", false).
		Eq("id", strconv.FormatInt(conversationID, 10)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
	}
	if len(rows) == 0 {
		return nil, "", nil
	}
	history, err := datatypes.UnmarshalHistory(rows[0].Messages)
	if err != nil {
		return nil, "", fmt.Errorf("conversation %d has a corrupt history blob: %w", conversationID, err)
	}
	return history, rows[0].UpdatedAt, nil
}

// SaveHistory implements Session.
//
// # Description
//
// Inserts when ConversationID is nil, otherwise overwrites the existing row
// keyed by id. Concurrency policy is last-write-wins with an explicit
// timestamp compare: when SeenUpdatedAt no longer matches the stored row the
// conflict is logged and counted, then this save overwrites anyway. Saving
// the same history twice against the same id updates the single existing
// row.
//
// # Outputs
//
//   - int64: The row id (newly assigned on insert).
//   - error: Non-nil when the history cannot be encoded or the backend
//     rejects the write.
func (m *Manager) SaveHistory(ctx context.Context, req SaveHistoryRequest) (int64, error) {
	blob, err := datatypes.MarshalHistory(req.History)
	if err != nil {
		return 0, err
	}

	row := conversationRow{
		ID:        req.ConversationID,
		UserID:    req.UserID,
		Title:     req.Title,
		Messages:  blob,
		UpdatedAt: m.now().UTC().Format(time.RFC3339Nano),
	}

	if req.ConversationID != nil && req.SeenUpdatedAt != "" {
		m.detectConflict(ctx, *req.ConversationID, req.SeenUpdatedAt)
	}

	var saved []conversationRow
	_, err = m.client.From(conversationsTable).
		Upsert(row, "id", "representation", "").
		ExecuteTo(&saved)
	if err != nil {
		return 0, fmt.Errorf("failed to save conversation: %w", err)
	}
	if len(saved) == 0 || saved[0].ID == nil {
		return 0, fmt.Errorf("hosted backend returned no row for the saved conversation")
	}
	return *saved[0].ID, nil
}

// detectConflict checks whether the row moved since the caller loaded it.
// Detection is advisory: the save proceeds either way (last write wins).
func (m *Manager) detectConflict(ctx context.Context, conversationID int64, seenUpdatedAt string) {
	var rows []conversationRow
	_, err := m.client.From(conversationsTable).
		Select("updated_at", "", false).
		Eq("id", strconv.FormatInt(conversationID, 10)).
		ExecuteTo(&rows)
	if err != nil {
		slog.Warn("Conflict check failed, proceeding with save",
			"conversationId", conversationID, "error", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	if rows[0].UpdatedAt != seenUpdatedAt {
		slog.Warn("Concurrent save detected, last write wins",
			"conversationId", conversationID,
			"seenUpdatedAt", seenUpdatedAt,
			"storedUpdatedAt", rows[0].UpdatedAt)
		if m.onConflict != nil {
			m.onConflict(conversationID)
		}
	}
}
