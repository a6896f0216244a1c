// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps the external LLM providers behind one chat interface.
//
// Agents reference models by name the way the prototype did: "openai:gpt-4o"
// selects the OpenAI backend, "gemini-1.5-flash" the Gemini backend. The
// Registry resolves a model name to the right client.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles on the provider wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one provider-neutral chat message.
type Message struct {
	Role       string
	Content    string
	ToolCallID string     // set on RoleTool messages
	ToolCalls  []ToolCall // set on RoleAssistant messages that requested tools
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDef describes a callable tool to the model. Parameters is a JSON
// schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// GenerationParams tunes a single chat call. Nil fields use provider defaults.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
	Stop        []string
}

// Completion is the model's turn: either text, tool calls, or both.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is the standard interface for any LLM backend.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDef,
		params GenerationParams) (*Completion, error)
}

// =============================================================================
// Registry
// =============================================================================

// Registry routes model names to backends.
type Registry struct {
	openai Client
	gemini Client
}

// NewRegistry builds a Registry over the configured backends. Either client
// may be nil; resolving a model to a missing backend is an error.
func NewRegistry(openai, gemini Client) *Registry {
	return &Registry{openai: openai, gemini: gemini}
}

// ClientFor resolves a model name like "openai:gpt-4o" or "gemini-1.5-flash"
// to its backend and bare model name.
func (r *Registry) ClientFor(model string) (Client, string, error) {
	bare := model
	var client Client
	switch {
	case strings.HasPrefix(model, "openai:"):
		bare = strings.TrimPrefix(model, "openai:")
		client = r.openai
	case strings.HasPrefix(model, "gemini"):
		client = r.gemini
	default:
		client = r.openai
	}
	if client == nil {
		return nil, "", fmt.Errorf("no backend configured for model %q", model)
	}
	return client, bare, nil
}
