// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures of the chat service.
//
// This file contains the client-facing chat types. For the message envelope
// representation used for persisted history, see message.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Roles
// =============================================================================

const (
	// RoleUser marks a message authored by the end user.
	RoleUser = "user"

	// RoleModel marks a message authored by the model.
	RoleModel = "model"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate = validator.New()

// =============================================================================
// Client-Facing Types
// =============================================================================

// ChatMessage is the flattened view of one conversation turn returned by the
// conversation endpoints.
//
// # Fields
//
//   - Role: "user" or "model".
//   - Timestamp: When the message was produced (RFC 3339).
//   - Content: The message text.
type ChatMessage struct {
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// ConversationSummary is one row of the conversation listing, ordered
// most-recently-updated first.
type ConversationSummary struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// WSClientMessage is one frame sent by the websocket client. UserID and
// SessionID must echo the values the server sent on connect.
type WSClientMessage struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid4"`
	Message   string `json:"message"`
}

// Validate checks the websocket frame fields.
func (m *WSClientMessage) Validate() error {
	return chatValidate.Struct(m)
}

// WSHello is the first frame the server sends after a successful websocket
// handshake.
type WSHello struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}
