// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent runs named LLM agents over message-envelope history.
//
// # Description
//
// An Agent couples a model name with system prompts and tools. Run passes
// the prior history through unmodified, appends the new user request, drives
// the model (including a bounded tool-calling loop), and returns the reply
// together with the full updated history. Any runtime failure surfaces as an
// apperrors.ErrAgent-wrapped error; there is no retry.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/datatypes"
	"github.com/AleutianAI/AleutianChat/llm"
)

// defaultMaxToolRounds bounds the tool loop so a confused model cannot spin
// the service on tool traffic forever.
const defaultMaxToolRounds = 5

// SystemPromptFunc produces one system prompt fragment per run. Used for
// prompts that depend on runtime state, like character profiles.
type SystemPromptFunc func(ctx context.Context) (string, error)

// Tool is a function the model may call.
//
// # Fields
//
//   - Name / Description: Shown to the model.
//   - Parameters: JSON schema for the arguments object.
//   - Call: Executes the tool. A returned error is reported back to the
//     model as the tool result (and logged); it does not abort the run.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Call        func(ctx context.Context, args json.RawMessage) (string, error)
}

// Agent is a named LLM responder.
type Agent struct {
	name          string
	model         string
	registry      *llm.Registry
	systemPrompt  string
	promptFuncs   []SystemPromptFunc
	tools         []Tool
	maxToolRounds int
	now           func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemPrompt sets the static system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithSystemPromptFunc appends a dynamic system prompt fragment.
func WithSystemPromptFunc(fn SystemPromptFunc) Option {
	return func(a *Agent) { a.promptFuncs = append(a.promptFuncs, fn) }
}

// WithTools appends callable tools.
func WithTools(tools ...Tool) Option {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithClock overrides the timestamp source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New builds an Agent for the given model name (e.g. "gemini-1.5-flash",
// "openai:gpt-4o").
func New(name, model string, registry *llm.Registry, opts ...Option) *Agent {
	a := &Agent{
		name:          name,
		model:         model,
		registry:      registry,
		maxToolRounds: defaultMaxToolRounds,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// RunResult is one completed agent turn.
type RunResult struct {
	// Reply is the model's final text.
	Reply string

	// Messages is the full updated history: the prior envelopes, the new
	// request, any tool traffic, and the final response.
	Messages []datatypes.Envelope
}

// Run invokes the agent with user text and prior history.
func (a *Agent) Run(ctx context.Context, text string, history []datatypes.Envelope) (*RunResult, error) {
	client, model, err := a.registry.ClientFor(a.model)
	if err != nil {
		return nil, apperrors.Agent(err)
	}

	messages, err := a.systemMessages(ctx)
	if err != nil {
		return nil, apperrors.Agent(err)
	}
	converted, err := envelopesToMessages(history)
	if err != nil {
		return nil, apperrors.Agent(err)
	}
	messages = append(messages, converted...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	// The prior history passes through unmodified; Run only appends.
	updated := make([]datatypes.Envelope, len(history), len(history)+3)
	copy(updated, history)
	updated = append(updated, datatypes.NewUserRequest(text, a.now()))

	toolDefs := a.toolDefs()

	for round := 0; round <= a.maxToolRounds; round++ {
		completion, err := client.Chat(ctx, model, messages, toolDefs, llm.GenerationParams{})
		if err != nil {
			return nil, apperrors.Agent(err)
		}

		if len(completion.ToolCalls) == 0 {
			updated = append(updated, datatypes.NewModelResponse(completion.Content, a.model, a.now()))
			return &RunResult{Reply: completion.Content, Messages: updated}, nil
		}

		callEnvelope, assistantMsg := a.recordToolCalls(completion)
		updated = append(updated, callEnvelope)
		messages = append(messages, assistantMsg)

		returnEnvelope, toolMsgs := a.executeToolCalls(ctx, completion.ToolCalls)
		updated = append(updated, returnEnvelope)
		messages = append(messages, toolMsgs...)
	}
	return nil, apperrors.Agent(fmt.Errorf("agent %q exceeded %d tool rounds", a.name, a.maxToolRounds))
}

func (a *Agent) systemMessages(ctx context.Context) ([]llm.Message, error) {
	var messages []llm.Message
	if a.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	for _, fn := range a.promptFuncs {
		prompt, err := fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("system prompt failed for agent %q: %w", a.name, err)
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
	}
	return messages, nil
}

func (a *Agent) toolDefs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// recordToolCalls converts a tool-calling completion into the response
// envelope and the assistant message replayed to the model.
func (a *Agent) recordToolCalls(completion *llm.Completion) (datatypes.Envelope, llm.Message) {
	at := a.now()
	parts := make([]datatypes.Part, 0, len(completion.ToolCalls))
	for _, tc := range completion.ToolCalls {
		parts = append(parts, datatypes.Part{
			Kind:       datatypes.PartToolCall,
			ToolName:   tc.Name,
			ToolCallID: tc.ID,
			Args:       tc.Arguments,
		})
	}
	msg := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   completion.Content,
		ToolCalls: completion.ToolCalls,
	}
	return datatypes.NewToolCallResponse(a.model, at, parts...), msg
}

// executeToolCalls runs every requested tool and packages the results both
// as a request envelope and as tool messages for the model. A failing tool
// reports its error text to the model instead of aborting the run.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) (datatypes.Envelope, []llm.Message) {
	at := a.now()
	parts := make([]datatypes.Part, 0, len(calls))
	msgs := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		result := a.callTool(ctx, call)
		parts = append(parts, datatypes.Part{
			Kind:       datatypes.PartToolReturn,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    result,
		})
		msgs = append(msgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
		})
	}
	return datatypes.NewToolReturnRequest(at, parts...), msgs
}

func (a *Agent) callTool(ctx context.Context, call llm.ToolCall) string {
	for _, t := range a.tools {
		if t.Name != call.Name {
			continue
		}
		result, err := t.Call(ctx, json.RawMessage(call.Arguments))
		if err != nil {
			slog.Warn("Tool call failed", "agent", a.name, "tool", call.Name, "error", err)
			return fmt.Sprintf("error: %v", err)
		}
		return result
	}
	slog.Warn("Model requested an unknown tool", "agent", a.name, "tool", call.Name)
	return fmt.Sprintf("error: unknown tool %q", call.Name)
}

// envelopesToMessages flattens stored envelopes into provider messages.
func envelopesToMessages(history []datatypes.Envelope) ([]llm.Message, error) {
	var messages []llm.Message
	for _, env := range history {
		switch env.Kind {
		case datatypes.EnvelopeRequest:
			for _, p := range env.Parts {
				switch p.Kind {
				case datatypes.PartUserPrompt:
					messages = append(messages, llm.Message{Role: llm.RoleUser, Content: p.Content})
				case datatypes.PartSystemPrompt:
					messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.Content})
				case datatypes.PartToolReturn:
					messages = append(messages, llm.Message{
						Role:       llm.RoleTool,
						Content:    p.Content,
						ToolCallID: p.ToolCallID,
					})
				default:
					return nil, fmt.Errorf("request envelope carries unexpected part %q", p.Kind)
				}
			}
		case datatypes.EnvelopeResponse:
			msg := llm.Message{Role: llm.RoleAssistant}
			for _, p := range env.Parts {
				switch p.Kind {
				case datatypes.PartText:
					msg.Content = p.Content
				case datatypes.PartToolCall:
					msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
						ID:        p.ToolCallID,
						Name:      p.ToolName,
						Arguments: p.Args,
					})
				default:
					return nil, fmt.Errorf("response envelope carries unexpected part %q", p.Kind)
				}
			}
			messages = append(messages, msg)
		default:
			return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
		}
	}
	return messages, nil
}
