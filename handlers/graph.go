// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/graph"
	"github.com/AleutianAI/AleutianChat/observability"
)

// GraphStore is the slice of the graph layer the admin endpoints use.
// *graph.Store is the production implementation.
type GraphStore interface {
	UpsertNode(ctx context.Context, node graph.Node) error
	GetNode(ctx context.Context, label, name string) (graph.Node, bool, error)
	GetNodes(ctx context.Context, label string) ([]graph.Node, error)
	DeleteNode(ctx context.Context, label, name string) error
	CreateRelationship(ctx context.Context,
		fromLabel, fromName, relType, toLabel, toName string, props map[string]any) error
	CreateVectorIndex(ctx context.Context, indexName, label string) error
	UpsertVector(ctx context.Context, label, name, text string) error
	Query(ctx context.Context, question, indexName string) (*graph.QueryResult, error)
}

// GraphNodeRequest is the body of POST /graph/nodes.
type GraphNodeRequest struct {
	Label      string         `json:"label" binding:"required"`
	Name       string         `json:"name" binding:"required"`
	Properties map[string]any `json:"properties"`
}

// GraphRelationshipRequest is the body of POST /graph/relationships.
type GraphRelationshipRequest struct {
	FromLabel  string         `json:"from_label" binding:"required"`
	FromName   string         `json:"from_name" binding:"required"`
	Type       string         `json:"type" binding:"required"`
	ToLabel    string         `json:"to_label" binding:"required"`
	ToName     string         `json:"to_name" binding:"required"`
	Properties map[string]any `json:"properties"`
}

// UpsertGraphNode creates or updates a node.
func UpsertGraphNode(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GraphNodeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		node := graph.Node{Label: req.Label, Name: req.Name, Properties: req.Properties}
		if err := store.UpsertNode(c.Request.Context(), node); err != nil {
			slog.Error("Failed to upsert graph node", "label", req.Label, "name", req.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "node saved"})
	}
}

// ListGraphNodes lists nodes by label.
func ListGraphNodes(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodes, err := store.GetNodes(c.Request.Context(), c.Param("label"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if nodes == nil {
			nodes = []graph.Node{}
		}
		c.JSON(http.StatusOK, nodes)
	}
}

// GetGraphNode fetches one node by label and name.
func GetGraphNode(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		node, found, err := store.GetNode(c.Request.Context(), c.Param("label"), c.Param("name"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
			return
		}
		c.JSON(http.StatusOK, node)
	}
}

// DeleteGraphNode removes a node and its relationships.
func DeleteGraphNode(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		label, name := c.Param("label"), c.Param("name")
		if err := store.DeleteNode(c.Request.Context(), label, name); err != nil {
			slog.Error("Failed to delete graph node", "label", label, "name", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "node deleted"})
	}
}

// CreateGraphRelationship links two existing nodes.
func CreateGraphRelationship(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GraphRelationshipRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		err := store.CreateRelationship(c.Request.Context(),
			req.FromLabel, req.FromName, req.Type, req.ToLabel, req.ToName, req.Properties)
		if err != nil {
			slog.Error("Failed to create graph relationship", "type", req.Type, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "relationship saved"})
	}
}

// GraphIndexRequest is the body of POST /graph/index.
type GraphIndexRequest struct {
	IndexName string `json:"index_name" binding:"required"`
	Label     string `json:"label" binding:"required"`
}

// GraphVectorRequest is the body of POST /graph/vectors.
type GraphVectorRequest struct {
	Label string `json:"label" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// CreateGraphIndex creates the vector index retrieval queries run against.
func CreateGraphIndex(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GraphIndexRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := store.CreateVectorIndex(c.Request.Context(), req.IndexName, req.Label); err != nil {
			slog.Error("Failed to create vector index", "index", req.IndexName, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "index created"})
	}
}

// UpsertGraphVector embeds text and stores it on an existing node.
func UpsertGraphVector(store GraphStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GraphVectorRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := store.UpsertVector(c.Request.Context(), req.Label, req.Name, req.Text); err != nil {
			slog.Error("Failed to upsert vector", "label", req.Label, "name", req.Name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "vector saved"})
	}
}

// GraphQuery answers a question from graph content via vector retrieval.
func GraphQuery(store GraphStore, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		question := c.Query("q")
		index := c.Query("index")
		if question == "" || index == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "q and index are required"})
			return
		}
		start := time.Now()
		result, err := store.Query(c.Request.Context(), question, index)
		if err != nil {
			metrics.RecordTurn(observability.EndpointGraphQuery, false)
			slog.Error("Graph query failed", "index", index, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		metrics.RecordTurn(observability.EndpointGraphQuery, true)
		metrics.RecordTurnDuration(observability.EndpointGraphQuery, time.Since(start).Seconds())
		c.JSON(http.StatusOK, result)
	}
}
