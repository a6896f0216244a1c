// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the Neo4j-backed retrieval helper.
//
// # Description
//
// Store holds node and relationship helpers plus a vector index over node
// text, so agents can answer questions from graph content. Nodes are keyed
// by (label, name); labels and relationship types are validated before being
// spliced into Cypher because they cannot be bound as parameters.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AleutianAI/AleutianChat/llm"
)

const (
	// embeddingModel and embeddingDimension must agree with the vector
	// index; changing either requires rebuilding the index.
	embeddingModel     = "text-embedding-3-small"
	embeddingDimension = 1536

	// vectorTopK is how many neighbors a retrieval query considers.
	vectorTopK = 5

	// embeddingProperty is the node property holding the vector.
	embeddingProperty = "embedding"

	// nodeListLimit caps GetNodes; the admin surface is a browsing aid,
	// not an export path.
	nodeListLimit = 10
)

// identifierPattern accepts the labels, relationship types, and index names
// we are willing to splice into Cypher text.
var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Embedder turns text into the vector stored on graph nodes. The OpenAI
// client implements it.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Node is one graph node addressed by label and name.
type Node struct {
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// Relationship is one edge with its endpoints resolved to names.
type Relationship struct {
	FromName   string         `json:"from_name"`
	Type       string         `json:"type"`
	ToName     string         `json:"to_name"`
	Properties map[string]any `json:"properties"`
}

// Store wraps one Neo4j driver plus the embedding backend.
type Store struct {
	driver   neo4j.DriverWithContext
	embedder Embedder
	database string

	// answerClient and answerModel synthesize Query answers; see UseAnswerer.
	answerClient llm.Client
	answerModel  string

	// runner, when set, replaces the driver-backed query execution. Tests
	// inject it; production leaves it nil.
	runner func(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// NewStore connects to Neo4j and verifies connectivity. The embedder may be
// nil when vector operations are not needed.
func NewStore(ctx context.Context, uri, username, password string, embedder Embedder) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create the graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach the graph database at %s: %w", uri, err)
	}
	slog.Info("Connected to graph database", "uri", uri)
	return &Store{driver: driver, embedder: embedder, database: "neo4j"}, nil
}

// Close releases the driver. Call once at shutdown.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func validIdentifier(kind, value string) error {
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("invalid %s %q", kind, value)
	}
	return nil
}

func (s *Store) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	if s.runner != nil {
		return s.runner(ctx, query, params)
	}
	return neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}

// UpsertNode merges a node by (label, name) and overlays its properties.
func (s *Store) UpsertNode(ctx context.Context, node Node) error {
	if err := validIdentifier("label", node.Label); err != nil {
		return err
	}
	props := map[string]any{}
	for k, v := range node.Properties {
		if k != "name" && k != embeddingProperty {
			props[k] = v
		}
	}
	query := fmt.Sprintf("MERGE (n:%s {name: $name}) SET n += $props", node.Label)
	_, err := s.run(ctx, query, map[string]any{"name": node.Name, "props": props})
	if err != nil {
		return fmt.Errorf("failed to upsert node %s %q: %w", node.Label, node.Name, err)
	}
	return nil
}

// GetNode fetches one node. Absence is reported via the bool.
func (s *Store) GetNode(ctx context.Context, label, name string) (Node, bool, error) {
	if err := validIdentifier("label", label); err != nil {
		return Node{}, false, err
	}
	query := fmt.Sprintf("MATCH (n:%s {name: $name}) RETURN properties(n) AS props", label)
	result, err := s.run(ctx, query, map[string]any{"name": name})
	if err != nil {
		return Node{}, false, fmt.Errorf("failed to fetch node %s %q: %w", label, name, err)
	}
	if len(result.Records) == 0 {
		return Node{}, false, nil
	}
	return nodeFromRecord(label, name, result.Records[0]), true, nil
}

// GetNodes lists nodes carrying the label, capped at nodeListLimit.
func (s *Store) GetNodes(ctx context.Context, label string) ([]Node, error) {
	if err := validIdentifier("label", label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"MATCH (n:%s) RETURN n.name AS name, properties(n) AS props ORDER BY n.name LIMIT $limit", label)
	result, err := s.run(ctx, query, map[string]any{"limit": nodeListLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s nodes: %w", label, err)
	}
	nodes := make([]Node, 0, len(result.Records))
	for _, record := range result.Records {
		name, _ := record.Get("name")
		nameStr, _ := name.(string)
		nodes = append(nodes, nodeFromRecord(label, nameStr, record))
	}
	return nodes, nil
}

// DeleteNode removes a node and all its relationships. Deleting a missing
// node is a no-op.
func (s *Store) DeleteNode(ctx context.Context, label, name string) error {
	if err := validIdentifier("label", label); err != nil {
		return err
	}
	query := fmt.Sprintf("MATCH (n:%s {name: $name}) DETACH DELETE n", label)
	_, err := s.run(ctx, query, map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("failed to delete node %s %q: %w", label, name, err)
	}
	return nil
}

// CreateRelationship merges a typed edge between two existing nodes. Fails
// when either endpoint does not exist.
func (s *Store) CreateRelationship(ctx context.Context,
	fromLabel, fromName, relType, toLabel, toName string, props map[string]any) error {
	for kind, v := range map[string]string{
		"label": fromLabel, "relationship type": relType, "target label": toLabel,
	} {
		if err := validIdentifier(kind, v); err != nil {
			return err
		}
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {name: $fromName})
		MATCH (b:%s {name: $toName})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
		RETURN type(r) AS type`, fromLabel, toLabel, relType)
	if props == nil {
		props = map[string]any{}
	}
	result, err := s.run(ctx, query, map[string]any{
		"fromName": fromName, "toName": toName, "props": props,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s from %q to %q: %w", relType, fromName, toName, err)
	}
	if len(result.Records) == 0 {
		return fmt.Errorf("cannot relate %s %q to %s %q: endpoint missing",
			fromLabel, fromName, toLabel, toName)
	}
	return nil
}

// Relationships lists every edge touching the named node, in either
// direction.
func (s *Store) Relationships(ctx context.Context, label, name string) ([]Relationship, error) {
	if err := validIdentifier("label", label); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (n:%s {name: $name})-[r]-(other)
		RETURN startNode(r).name AS fromName, type(r) AS type,
		       endNode(r).name AS toName, properties(r) AS props`, label)
	result, err := s.run(ctx, query, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships of %s %q: %w", label, name, err)
	}
	return relationshipsFromRecords(result.Records), nil
}

// RelationshipsBetween lists the edges from one named node to another.
func (s *Store) RelationshipsBetween(ctx context.Context,
	fromLabel, fromName, toLabel, toName string) ([]Relationship, error) {
	if err := validIdentifier("label", fromLabel); err != nil {
		return nil, err
	}
	if err := validIdentifier("label", toLabel); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {name: $fromName})-[r]->(b:%s {name: $toName})
		RETURN startNode(r).name AS fromName, type(r) AS type,
		       endNode(r).name AS toName, properties(r) AS props`, fromLabel, toLabel)
	result, err := s.run(ctx, query, map[string]any{"fromName": fromName, "toName": toName})
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships from %q to %q: %w", fromName, toName, err)
	}
	return relationshipsFromRecords(result.Records), nil
}

// RelationshipsOfType lists every edge of the given type.
func (s *Store) RelationshipsOfType(ctx context.Context, relType string) ([]Relationship, error) {
	if err := validIdentifier("relationship type", relType); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		MATCH (a)-[r:%s]->(b)
		RETURN a.name AS fromName, type(r) AS type,
		       b.name AS toName, properties(r) AS props`, relType)
	result, err := s.run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s relationships: %w", relType, err)
	}
	return relationshipsFromRecords(result.Records), nil
}

func nodeFromRecord(label, name string, record *neo4j.Record) Node {
	node := Node{Label: label, Name: name, Properties: map[string]any{}}
	raw, ok := record.Get("props")
	if !ok {
		return node
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return node
	}
	for k, v := range props {
		if k == embeddingProperty {
			continue
		}
		if k == "name" {
			if s, ok := v.(string); ok {
				node.Name = s
			}
			continue
		}
		node.Properties[k] = v
	}
	return node
}

func relationshipsFromRecords(records []*neo4j.Record) []Relationship {
	rels := make([]Relationship, 0, len(records))
	for _, record := range records {
		rel := Relationship{Properties: map[string]any{}}
		if v, ok := record.Get("fromName"); ok {
			rel.FromName, _ = v.(string)
		}
		if v, ok := record.Get("type"); ok {
			rel.Type, _ = v.(string)
		}
		if v, ok := record.Get("toName"); ok {
			rel.ToName, _ = v.(string)
		}
		if v, ok := record.Get("props"); ok {
			if props, ok := v.(map[string]any); ok {
				rel.Properties = props
			}
		}
		rels = append(rels, rel)
	}
	return rels
}
