// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient backs the plain chat agents. It does not support tool
// calling; agents that need tools select the OpenAI backend, matching the
// prototype's model split.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient constructs the Gemini backend.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Chat implements the Client interface.
func (g *GeminiClient) Chat(ctx context.Context, model string, messages []Message,
	tools []ToolDef, params GenerationParams) (*Completion, error) {

	if len(tools) > 0 {
		return nil, fmt.Errorf("the Gemini backend does not support tool calling")
	}

	cfg := &genai.GenerateContentConfig{}
	if params.Temperature != nil {
		cfg.Temperature = genai.Ptr(*params.Temperature)
	}
	if params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		cfg.StopSequences = params.Stop
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			// Gemini takes the system prompt out of band.
			cfg.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case RoleTool:
			return nil, fmt.Errorf("the Gemini backend cannot replay tool messages")
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	slog.Debug("Calling Gemini generate content", "model", model, "contents", len(contents))
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("Gemini returned no text")
	}
	return &Completion{Content: text}, nil
}
