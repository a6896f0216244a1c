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
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/llm"
)

// factoryModel is the model new factory-created agents run on. Plain chat
// only, so the Gemini backend is fine here.
const factoryModel = "gemini-1.5-pro"

// orchestratorModel drives the factory's own tool-calling agent.
const orchestratorModel = "openai:gpt-4o"

// Factory holds a mutable registry of named agents. The orchestrator agent
// creates, lists, and runs them through tools; handlers may also reach in
// directly. Safe for concurrent use.
type Factory struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	registry *llm.Registry
}

// NewFactory builds an empty Factory.
func NewFactory(registry *llm.Registry) *Factory {
	return &Factory{
		agents:   make(map[string]*Agent),
		registry: registry,
	}
}

// Register adds (or replaces) an agent under its name.
func (f *Factory) Register(a *Agent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.Name()] = a
}

// Names lists the registered agent names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.agents))
	for name := range f.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create registers a new plain-chat agent with the given system prompt.
func (f *Factory) Create(name, systemPrompt string) error {
	if name == "" {
		return fmt.Errorf("agent name is required")
	}
	a := New(name, factoryModel, f.registry, WithSystemPrompt(systemPrompt))
	f.Register(a)
	slog.Info("Created agent", "name", name)
	return nil
}

// RunAgent runs a registered agent on a one-shot instruction (no history).
// An unknown name fails with apperrors.ErrNotFound.
func (f *Factory) RunAgent(ctx context.Context, name, instruction string) (string, error) {
	f.mu.RLock()
	a, ok := f.agents[name]
	f.mu.RUnlock()
	if !ok {
		return "", apperrors.NotFound("no agent named %q", name)
	}
	result, err := a.Run(ctx, instruction, nil)
	if err != nil {
		return "", err
	}
	return result.Reply, nil
}

// NewOrchestratorAgent builds the agent that manages the factory. Its tools
// list, create, and run the factory's agents, so a single conversation can
// spin up workers and delegate to them.
func NewOrchestratorAgent(registry *llm.Registry, factory *Factory) *Agent {
	return New("orchestrator", orchestratorModel, registry,
		WithSystemPrompt("You manage a pool of specialist agents. Use list_agents to see "+
			"what exists, create_agent to add a specialist with a system prompt describing "+
			"its job, and run_agent to delegate work to one."),
		WithTools(factoryTools(factory)...),
	)
}

func factoryTools(factory *Factory) []Tool {
	return []Tool{
		{
			Name:        "list_agents",
			Description: "List the names of all registered agents.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				names := factory.Names()
				if len(names) == 0 {
					return "no agents registered", nil
				}
				blob, err := json.Marshal(names)
				if err != nil {
					return "", err
				}
				return string(blob), nil
			},
		},
		{
			Name:        "create_agent",
			Description: "Create and register a new agent with a name and a system prompt.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Unique agent name."},
					"system_prompt": {"type": "string", "description": "Instructions defining the agent's job."}
				},
				"required": ["name", "system_prompt"]
			}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Name         string `json:"name"`
					SystemPrompt string `json:"system_prompt"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad create_agent arguments: %w", err)
				}
				if err := factory.Create(in.Name, in.SystemPrompt); err != nil {
					return "", err
				}
				return fmt.Sprintf("agent %q created", in.Name), nil
			},
		},
		{
			Name:        "run_agent",
			Description: "Run a registered agent on an instruction and return its reply.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "The agent to run."},
					"instruction": {"type": "string", "description": "What the agent should do."}
				},
				"required": ["name", "instruction"]
			}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Name        string `json:"name"`
					Instruction string `json:"instruction"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad run_agent arguments: %w", err)
				}
				return factory.RunAgent(ctx, in.Name, in.Instruction)
			},
		},
	}
}
