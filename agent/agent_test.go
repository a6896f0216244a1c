// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/datatypes"
	"github.com/AleutianAI/AleutianChat/llm"
)

// scriptedClient replays a fixed sequence of completions and records what it
// was asked.
type scriptedClient struct {
	completions []*llm.Completion
	err         error

	calls    int
	messages [][]llm.Message
	tools    [][]llm.ToolDef
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message,
	tools []llm.ToolDef, params llm.GenerationParams) (*llm.Completion, error) {
	c.calls++
	c.messages = append(c.messages, messages)
	c.tools = append(c.tools, tools)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.completions) == 0 {
		return nil, fmt.Errorf("scripted client ran out of completions")
	}
	next := c.completions[0]
	c.completions = c.completions[1:]
	return next, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunAppendsToHistory(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{{Content: "hi there"}}}
	registry := llm.NewRegistry(client, nil)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := New("test", "openai:gpt-4o", registry,
		WithSystemPrompt("be brief"), WithClock(fixedClock(at)))

	history := []datatypes.Envelope{
		datatypes.NewUserRequest("earlier question", at.Add(-time.Hour)),
		datatypes.NewModelResponse("earlier answer", "openai:gpt-4o", at.Add(-time.Hour)),
	}
	result, err := a.Run(context.Background(), "hello", history)
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Reply)

	// Prior history passes through unmodified, then request and response.
	require.Len(t, result.Messages, 4)
	assert.Equal(t, history[0], result.Messages[0])
	assert.Equal(t, history[1], result.Messages[1])
	assert.Equal(t, datatypes.NewUserRequest("hello", at), result.Messages[2])
	assert.Equal(t, datatypes.NewModelResponse("hi there", "openai:gpt-4o", at), result.Messages[3])

	// The provider saw system prompt, prior turns, then the new text.
	require.Equal(t, 1, client.calls)
	sent := client.messages[0]
	require.Len(t, sent, 4)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, "earlier question", sent[1].Content)
	assert.Equal(t, "earlier answer", sent[2].Content)
	assert.Equal(t, "hello", sent[3].Content)
}

func TestRunExecutesToolLoop(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "shout", Arguments: `{"text":"hey"}`}}},
		{Content: "done: HEY"},
	}}
	registry := llm.NewRegistry(client, nil)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var gotArgs string
	a := New("test", "openai:gpt-4o", registry,
		WithClock(fixedClock(at)),
		WithTools(Tool{
			Name:        "shout",
			Description: "Uppercase the text.",
			Parameters:  json.RawMessage(`{"type":"object"}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				gotArgs = string(args)
				return "HEY", nil
			},
		}))

	result, err := a.Run(context.Background(), "shout hey", nil)
	require.NoError(t, err)
	assert.Equal(t, "done: HEY", result.Reply)
	assert.Equal(t, `{"text":"hey"}`, gotArgs)

	// Request, tool call, tool return, final response.
	require.Len(t, result.Messages, 4)
	assert.Equal(t, datatypes.EnvelopeResponse, result.Messages[1].Kind)
	assert.Equal(t, datatypes.PartToolCall, result.Messages[1].Parts[0].Kind)
	assert.Equal(t, "shout", result.Messages[1].Parts[0].ToolName)
	assert.Equal(t, datatypes.EnvelopeRequest, result.Messages[2].Kind)
	assert.Equal(t, datatypes.PartToolReturn, result.Messages[2].Parts[0].Kind)
	assert.Equal(t, "HEY", result.Messages[2].Parts[0].Content)

	// The second provider call carried the tool result under the call id.
	require.Equal(t, 2, client.calls)
	second := client.messages[1]
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Equal(t, "HEY", last.Content)
}

func TestRunReportsToolErrorsToModel(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "broken", Arguments: `{}`}}},
		{Content: "recovered"},
	}}
	registry := llm.NewRegistry(client, nil)
	a := New("test", "openai:gpt-4o", registry,
		WithTools(Tool{
			Name:       "broken",
			Parameters: json.RawMessage(`{"type":"object"}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				return "", fmt.Errorf("boom")
			},
		}))

	result, err := a.Run(context.Background(), "try it", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Reply)

	second := client.messages[1]
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, "boom")
}

func TestRunUnknownToolReportedToModel(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "missing", Arguments: `{}`}}},
		{Content: "ok"},
	}}
	registry := llm.NewRegistry(client, nil)
	a := New("test", "openai:gpt-4o", registry)

	result, err := a.Run(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Reply)

	second := client.messages[1]
	last := second[len(second)-1]
	assert.Contains(t, last.Content, `unknown tool "missing"`)
}

func TestRunWrapsProviderErrors(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("provider down")}
	registry := llm.NewRegistry(client, nil)
	a := New("test", "openai:gpt-4o", registry)

	_, err := a.Run(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAgent))
	assert.Contains(t, err.Error(), "provider down")
}

func TestRunBoundsToolRounds(t *testing.T) {
	// Every completion requests another tool call; the loop must give up.
	looping := make([]*llm.Completion, defaultMaxToolRounds+1)
	for i := range looping {
		looping[i] = &llm.Completion{
			ToolCalls: []llm.ToolCall{{ID: fmt.Sprintf("call-%d", i), Name: "noop", Arguments: `{}`}},
		}
	}
	client := &scriptedClient{completions: looping}
	registry := llm.NewRegistry(client, nil)
	a := New("test", "openai:gpt-4o", registry,
		WithTools(Tool{
			Name:       "noop",
			Parameters: json.RawMessage(`{"type":"object"}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				return "ok", nil
			},
		}))

	_, err := a.Run(context.Background(), "loop forever", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAgent))
	assert.Contains(t, err.Error(), "tool rounds")
}

func TestRunNoBackendConfigured(t *testing.T) {
	registry := llm.NewRegistry(nil, nil)
	a := New("test", "gemini-1.5-flash", registry)

	_, err := a.Run(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAgent))
}

func TestFactoryCreateAndRun(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{{Content: "report ready"}}}
	registry := llm.NewRegistry(client, client)
	factory := NewFactory(registry)

	require.NoError(t, factory.Create("researcher", "You research things."))
	assert.Equal(t, []string{"researcher"}, factory.Names())

	reply, err := factory.RunAgent(context.Background(), "researcher", "find facts")
	require.NoError(t, err)
	assert.Equal(t, "report ready", reply)

	// The created agent's system prompt reached the provider.
	sent := client.messages[0]
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, "You research things.", sent[0].Content)
}

func TestFactoryRunUnknownAgent(t *testing.T) {
	factory := NewFactory(llm.NewRegistry(nil, nil))
	_, err := factory.RunAgent(context.Background(), "ghost", "do anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestFactoryCreateRequiresName(t *testing.T) {
	factory := NewFactory(llm.NewRegistry(nil, nil))
	assert.Error(t, factory.Create("", "prompt"))
}

func TestOrchestratorDelegatesThroughTools(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call-1",
			Name:      "create_agent",
			Arguments: `{"name":"poet","system_prompt":"You write poems."}`,
		}}},
		{ToolCalls: []llm.ToolCall{{
			ID:        "call-2",
			Name:      "run_agent",
			Arguments: `{"name":"poet","instruction":"write one line"}`,
		}}},
		{Content: "a single line"}, // the poet agent's own run
		{Content: "here is the poem"},
	}}
	registry := llm.NewRegistry(client, client)
	factory := NewFactory(registry)
	orchestrator := NewOrchestratorAgent(registry, factory)

	result, err := orchestrator.Run(context.Background(), "make a poet and use it", nil)
	require.NoError(t, err)
	assert.Equal(t, "here is the poem", result.Reply)
	assert.Equal(t, []string{"poet"}, factory.Names())
}
