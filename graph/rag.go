// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AleutianAI/AleutianChat/llm"
)

// UseAnswerer sets the model that synthesizes Query answers from retrieved
// context. Must be set before Query is called; retrieval-only deployments
// can skip it.
func (s *Store) UseAnswerer(client llm.Client, model string) {
	s.answerClient = client
	s.answerModel = model
}

// CreateVectorIndex creates (if missing) the cosine vector index over the
// embedding property of nodes with the given label.
func (s *Store) CreateVectorIndex(ctx context.Context, indexName, label string) error {
	if err := validIdentifier("index name", indexName); err != nil {
		return err
	}
	if err := validIdentifier("label", label); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s) ON (n.%s)
		OPTIONS {indexConfig: {
			`+"`vector.dimensions`"+`: $dimensions,
			`+"`vector.similarity_function`"+`: 'cosine'
		}}`, indexName, label, embeddingProperty)
	_, err := s.run(ctx, query, map[string]any{"dimensions": embeddingDimension})
	if err != nil {
		return fmt.Errorf("failed to create vector index %q: %w", indexName, err)
	}
	return nil
}

// UpsertVector embeds the text and stores both the text and its vector on
// the named node. The node must already exist.
func (s *Store) UpsertVector(ctx context.Context, label, name, text string) error {
	if err := validIdentifier("label", label); err != nil {
		return err
	}
	if s.embedder == nil {
		return fmt.Errorf("no embedding backend configured")
	}
	vector, err := s.embedder.Embed(ctx, embeddingModel, text)
	if err != nil {
		return fmt.Errorf("failed to embed text for %s %q: %w", label, name, err)
	}
	if len(vector) != embeddingDimension {
		return fmt.Errorf("embedding for %s %q has %d dimensions, want %d",
			label, name, len(vector), embeddingDimension)
	}

	query := fmt.Sprintf(`
		MATCH (n:%s {name: $name})
		SET n.text = $text
		WITH n
		CALL db.create.setNodeVectorProperty(n, $property, $vector)
		RETURN n.name AS name`, label)
	result, err := s.run(ctx, query, map[string]any{
		"name":     name,
		"text":     text,
		"property": embeddingProperty,
		"vector":   vector,
	})
	if err != nil {
		return fmt.Errorf("failed to store vector on %s %q: %w", label, name, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("cannot store vector: node %s %q does not exist", label, name)
	}
	return nil
}

// QueryResult is one answered retrieval query.
type QueryResult struct {
	// Answer is the synthesized response.
	Answer string `json:"answer"`

	// Context holds the retrieved node texts the answer was grounded on,
	// best match first.
	Context []string `json:"context"`
}

// Query answers a question from graph content: the question is embedded, the
// nearest nodes are retrieved from the vector index, and the configured
// model synthesizes an answer from their text.
func (s *Store) Query(ctx context.Context, question, indexName string) (*QueryResult, error) {
	if err := validIdentifier("index name", indexName); err != nil {
		return nil, err
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedding backend configured")
	}
	if s.answerClient == nil {
		return nil, fmt.Errorf("no answering model configured")
	}

	vector, err := s.embedder.Embed(ctx, embeddingModel, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed the question: %w", err)
	}

	result, err := s.run(ctx, `
		CALL db.index.vector.queryNodes($index, $topK, $vector)
		YIELD node, score
		RETURN node.text AS text, score
		ORDER BY score DESC`,
		map[string]any{"index": indexName, "topK": vectorTopK, "vector": vector})
	if err != nil {
		return nil, fmt.Errorf("vector search on %q failed: %w", indexName, err)
	}

	contexts := contextsFromRecords(result.Records)
	if len(contexts) == 0 {
		return &QueryResult{Answer: "I could not find anything relevant.", Context: nil}, nil
	}

	answer, err := s.synthesizeAnswer(ctx, question, contexts)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Answer: answer, Context: contexts}, nil
}

func (s *Store) synthesizeAnswer(ctx context.Context, question string, contexts []string) (string, error) {
	prompt := fmt.Sprintf(
		"Answer the question using only the context below.\n\nContext:\n%s\n\nQuestion: %s",
		strings.Join(contexts, "\n---\n"), question)
	completion, err := s.answerClient.Chat(ctx, s.answerModel,
		[]llm.Message{
			{Role: llm.RoleSystem, Content: "You answer questions from the provided context. Say so when the context does not contain the answer."},
			{Role: llm.RoleUser, Content: prompt},
		}, nil, llm.GenerationParams{})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize an answer: %w", err)
	}
	return completion.Content, nil
}

func contextsFromRecords(records []*neo4j.Record) []string {
	var contexts []string
	for _, record := range records {
		raw, ok := record.Get("text")
		if !ok {
			continue
		}
		if text, ok := raw.(string); ok && text != "" {
			contexts = append(contexts, text)
		}
	}
	return contexts
}
