// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the external tools agents can call.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TavilyClient answers questions with the Tavily search API. Constructed
// only when TAVILY_API_KEY is configured; agents omit the web search tool
// otherwise.
type TavilyClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type tavilySearchPayload struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilySearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

// NewTavilyClient builds the search client.
func NewTavilyClient(apiKey string) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Tavily API key is empty")
	}
	return &TavilyClient{
		httpClient: &http.Client{Timeout: time.Minute},
		apiKey:     apiKey,
		baseURL:    "https://api.tavily.com",
	}, nil
}

// QnASearch searches the web for the answer to the question and returns a
// short textual answer.
func (t *TavilyClient) QnASearch(ctx context.Context, question string) (string, error) {
	payload := tavilySearchPayload{
		APIKey:        t.apiKey,
		Query:         question,
		IncludeAnswer: true,
		MaxResults:    5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the search payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build the search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling Tavily search", "question", question)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make a request to Tavily: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the Tavily response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Tavily returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed tavilySearchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode the Tavily response: %w", err)
	}
	if parsed.Answer != "" {
		return parsed.Answer, nil
	}

	// No synthesized answer; fall back to the top result snippets.
	var snippets []string
	for _, r := range parsed.Results {
		snippets = append(snippets, r.Title+": "+r.Content)
	}
	if len(snippets) == 0 {
		return "", fmt.Errorf("Tavily returned no answer for %q", question)
	}
	return strings.Join(snippets, "\n"), nil
}
