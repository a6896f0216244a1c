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

	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/profile"
	"github.com/AleutianAI/AleutianChat/supabase"
	"github.com/AleutianAI/AleutianChat/tools"
)

// characterModel must support tool calling; the Gemini backend does not, so
// character chat always routes to OpenAI.
const characterModel = "openai:gpt-4o"

// characterKind is the hosted entity table holding persona rows.
const characterKind = "character"

// CharacterDeps wires the character agent's storage.
//
// # Fields
//
//   - Backend: Authoritative profile storage (hosted entity rows).
//   - Cache: Local profile cache consulted before the backend.
//   - AIName: The persona the agent plays.
//   - UserName: The persona whose traits the agent recognizes in the user.
type CharacterDeps struct {
	Backend  supabase.Session
	Cache    *profile.Store
	AIName   string
	UserName string
}

// NewCharacterAgent builds the persona roleplay agent.
//
// # Description
//
// The agent plays AIName and recognizes UserName, resolving both profiles at
// run time (cache first, hosted backend on miss). It carries tools to fetch
// and update profiles mid-conversation; updates write through to the backend
// and refresh the cache. The web search tool is attached only when a search
// client is configured.
func NewCharacterAgent(registry *llm.Registry, deps CharacterDeps, search *tools.TavilyClient) *Agent {
	opts := []Option{
		WithSystemPrompt("Use the update_character_profile tool whenever you are asked " +
			"to save or memorize anything about a character."),
		WithSystemPromptFunc(func(ctx context.Context) (string, error) {
			char, err := resolveCharacter(ctx, deps, deps.AIName)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("# Play a role as %s.\nYour Personality: %s",
				char.Name, encodeProfile(char.Profile)), nil
		}),
		WithSystemPromptFunc(func(ctx context.Context) (string, error) {
			char, err := resolveCharacter(ctx, deps, deps.UserName)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Recognize the user's personality: %s",
				encodeProfile(char.Profile)), nil
		}),
		WithTools(characterTools(deps)...),
	}
	if search != nil {
		opts = append(opts, WithTools(webSearchTool(search)))
	}
	return New("character_chat", characterModel, registry, opts...)
}

func characterTools(deps CharacterDeps) []Tool {
	return []Tool{
		{
			Name:        "get_character_profile",
			Description: "Fetch the stored profile for a character by name.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"character_name": {"type": "string", "description": "The character's name."}
				},
				"required": ["character_name"]
			}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					CharacterName string `json:"character_name"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad get_character_profile arguments: %w", err)
				}
				char, err := resolveCharacter(ctx, deps, in.CharacterName)
				if err != nil {
					return "", err
				}
				return encodeProfile(char.Profile), nil
			},
		},
		{
			Name: "update_character_profile",
			Description: "Replace the stored profile for a character. " +
				"The profile is a JSON object of traits.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"character_name": {"type": "string", "description": "The character's name."},
					"profile": {"type": "object", "description": "The full replacement profile."}
				},
				"required": ["character_name", "profile"]
			}`),
			Call: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					CharacterName string         `json:"character_name"`
					Profile       map[string]any `json:"profile"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("bad update_character_profile arguments: %w", err)
				}
				err := deps.Backend.SaveEntity(ctx, characterKind, in.CharacterName,
					map[string]any{"profile": in.Profile})
				if err != nil {
					return "", err
				}
				char := profile.Character{Name: in.CharacterName, Profile: in.Profile}
				if err := deps.Cache.Set(char); err != nil {
					// The authoritative write already landed; a stale cache
					// self-heals on the next update.
					slog.Warn("Failed to refresh the profile cache", "character", in.CharacterName, "error", err)
				}
				return fmt.Sprintf("profile for %q saved", in.CharacterName), nil
			},
		},
	}
}

func webSearchTool(search *tools.TavilyClient) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web for the answer to a question.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"question": {"type": "string", "description": "The question to answer."}
			},
			"required": ["question"]
		}`),
		Call: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in struct {
				Question string `json:"question"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("bad web_search arguments: %w", err)
			}
			return search.QnASearch(ctx, in.Question)
		},
	}
}

// resolveCharacter looks a profile up in the cache, falling back to the
// hosted backend and caching what it finds. An unknown name resolves to an
// empty profile so a fresh persona can still chat.
func resolveCharacter(ctx context.Context, deps CharacterDeps, name string) (profile.Character, error) {
	char, found, err := deps.Cache.Get(name)
	if err != nil {
		return profile.Character{}, err
	}
	if found {
		return char, nil
	}

	row, found, err := deps.Backend.GetEntity(ctx, characterKind, name)
	if err != nil {
		return profile.Character{}, err
	}
	if !found {
		return profile.Character{Name: name, Profile: map[string]any{}}, nil
	}

	char = profile.Character{Name: name}
	if p, ok := row["profile"].(map[string]any); ok {
		char.Profile = p
	} else {
		char.Profile = map[string]any{}
	}
	if err := deps.Cache.Set(char); err != nil {
		slog.Warn("Failed to cache a fetched profile", "character", name, "error", err)
	}
	return char, nil
}

func encodeProfile(p map[string]any) string {
	blob, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
