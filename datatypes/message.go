// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianChat/apperrors"
)

// =============================================================================
// Message Envelopes
// =============================================================================

// EnvelopeKind distinguishes request envelopes (sent to the model) from
// response envelopes (produced by the model).
type EnvelopeKind string

const (
	// EnvelopeRequest holds parts sent to the model: user prompts, system
	// prompts, tool returns.
	EnvelopeRequest EnvelopeKind = "request"

	// EnvelopeResponse holds parts produced by the model: text and tool calls.
	EnvelopeResponse EnvelopeKind = "response"
)

// PartKind is the discriminator for the typed parts of an envelope.
type PartKind string

const (
	PartUserPrompt   PartKind = "user_prompt"
	PartSystemPrompt PartKind = "system_prompt"
	PartText         PartKind = "text"
	PartToolCall     PartKind = "tool_call"
	PartToolReturn   PartKind = "tool_return"
)

// knownPartKinds is consulted when decoding persisted history. An unknown
// kind fails the decode instead of round-tripping silently.
var knownPartKinds = map[PartKind]bool{
	PartUserPrompt:   true,
	PartSystemPrompt: true,
	PartText:         true,
	PartToolCall:     true,
	PartToolReturn:   true,
}

// Part is one typed unit inside an envelope.
//
// # Fields
//
//   - Kind: Discriminator; see the PartKind constants.
//   - Content: Prompt text, model text, or tool return payload.
//   - Timestamp: When the part was created. Only user prompts carry one;
//     response parts inherit the envelope timestamp.
//   - ToolName / ToolCallID / Args: Populated on tool_call and tool_return
//     parts only.
type Part struct {
	Kind       PartKind  `json:"kind"`
	Content    string    `json:"content,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Args       string    `json:"args,omitempty"`
}

// Envelope is one structured unit of conversation history. The tagged
// Kind/Part representation replaces the original's runtime type inspection:
// classification is explicit and conversion is total.
type Envelope struct {
	Kind      EnvelopeKind `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	Model     string       `json:"model,omitempty"`
	Parts     []Part       `json:"parts"`
}

// Validate rejects envelopes with an unknown kind, no parts, or parts with
// an unknown kind.
func (e *Envelope) Validate() error {
	if e.Kind != EnvelopeRequest && e.Kind != EnvelopeResponse {
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	if len(e.Parts) == 0 {
		return fmt.Errorf("%s envelope has no parts", e.Kind)
	}
	for i, p := range e.Parts {
		if !knownPartKinds[p.Kind] {
			return fmt.Errorf("part %d has unknown kind %q", i, p.Kind)
		}
	}
	return nil
}

// =============================================================================
// Constructors
// =============================================================================

// NewUserRequest builds the request envelope for a user prompt.
func NewUserRequest(text string, at time.Time) Envelope {
	return Envelope{
		Kind:      EnvelopeRequest,
		Timestamp: at,
		Parts:     []Part{{Kind: PartUserPrompt, Content: text, Timestamp: at}},
	}
}

// NewSystemRequest builds the request envelope for a system prompt.
func NewSystemRequest(text string, at time.Time) Envelope {
	return Envelope{
		Kind:      EnvelopeRequest,
		Timestamp: at,
		Parts:     []Part{{Kind: PartSystemPrompt, Content: text, Timestamp: at}},
	}
}

// NewModelResponse builds the response envelope for model text.
func NewModelResponse(text, model string, at time.Time) Envelope {
	return Envelope{
		Kind:      EnvelopeResponse,
		Timestamp: at,
		Model:     model,
		Parts:     []Part{{Kind: PartText, Content: text}},
	}
}

// NewToolCallResponse builds the response envelope for a batch of tool calls.
func NewToolCallResponse(model string, at time.Time, calls ...Part) Envelope {
	return Envelope{Kind: EnvelopeResponse, Timestamp: at, Model: model, Parts: calls}
}

// NewToolReturnRequest builds the request envelope carrying tool results
// back to the model.
func NewToolReturnRequest(at time.Time, returns ...Part) Envelope {
	return Envelope{Kind: EnvelopeRequest, Timestamp: at, Parts: returns}
}

// =============================================================================
// History Codec
// =============================================================================

// MarshalHistory serializes a full-history snapshot into the opaque blob
// stored in the conversation row.
func MarshalHistory(history []Envelope) (string, error) {
	blob, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message history: %w", err)
	}
	return string(blob), nil
}

// UnmarshalHistory reconstructs a history from a stored blob. An empty blob
// yields an empty history. Every envelope is validated so that corrupt or
// unknown shapes fail the load instead of resurfacing later as an
// unrepresentable message.
func UnmarshalHistory(blob string) ([]Envelope, error) {
	if blob == "" {
		return nil, nil
	}
	var history []Envelope
	if err := json.Unmarshal([]byte(blob), &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message history: %w", err)
	}
	for i := range history {
		if err := history[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid envelope at index %d: %w", i, err)
		}
	}
	return history, nil
}

// =============================================================================
// Chat Message Conversion
// =============================================================================

// ToChatMessage converts an envelope into the flattened chat view.
//
// # Description
//
// The conversion is discriminated on the envelope kind and the kind of the
// first part:
//
//   - request whose first part is a user prompt  -> role "user"
//   - response whose first part is model text    -> role "model"
//
// Any other shape (system prompts, tool traffic, empty envelopes) is not a
// chat message and fails with apperrors.ErrUnrepresentable. Callers must not
// swallow that error; the history itself is fine, the envelope just has no
// chat rendering.
func ToChatMessage(e Envelope) (ChatMessage, error) {
	if len(e.Parts) == 0 {
		return ChatMessage{}, apperrors.Unrepresentable("%s envelope has no parts", e.Kind)
	}
	first := e.Parts[0]
	switch {
	case e.Kind == EnvelopeRequest && first.Kind == PartUserPrompt:
		return ChatMessage{Role: RoleUser, Timestamp: first.Timestamp, Content: first.Content}, nil
	case e.Kind == EnvelopeResponse && first.Kind == PartText:
		return ChatMessage{Role: RoleModel, Timestamp: e.Timestamp, Content: first.Content}, nil
	}
	return ChatMessage{}, apperrors.Unrepresentable(
		"%s envelope with first part %q", e.Kind, first.Kind)
}
