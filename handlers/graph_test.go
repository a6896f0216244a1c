// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/graph"
	"github.com/AleutianAI/AleutianChat/observability"
)

type fakeGraphStore struct {
	nodes    map[string]graph.Node
	rels     []string
	indexes  []string
	vectors  []string
	queryRes *graph.QueryResult
	err      error
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{nodes: map[string]graph.Node{}}
}

func (f *fakeGraphStore) key(label, name string) string { return label + "/" + name }

func (f *fakeGraphStore) UpsertNode(ctx context.Context, node graph.Node) error {
	if f.err != nil {
		return f.err
	}
	f.nodes[f.key(node.Label, node.Name)] = node
	return nil
}

func (f *fakeGraphStore) GetNode(ctx context.Context, label, name string) (graph.Node, bool, error) {
	node, ok := f.nodes[f.key(label, name)]
	return node, ok, f.err
}

func (f *fakeGraphStore) GetNodes(ctx context.Context, label string) ([]graph.Node, error) {
	var nodes []graph.Node
	for _, n := range f.nodes {
		if n.Label == label {
			nodes = append(nodes, n)
		}
	}
	return nodes, f.err
}

func (f *fakeGraphStore) DeleteNode(ctx context.Context, label, name string) error {
	delete(f.nodes, f.key(label, name))
	return f.err
}

func (f *fakeGraphStore) CreateRelationship(ctx context.Context,
	fromLabel, fromName, relType, toLabel, toName string, props map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.rels = append(f.rels, fromName+"-"+relType+"->"+toName)
	return nil
}

func (f *fakeGraphStore) CreateVectorIndex(ctx context.Context, indexName, label string) error {
	if f.err != nil {
		return f.err
	}
	f.indexes = append(f.indexes, indexName+" on "+label)
	return nil
}

func (f *fakeGraphStore) UpsertVector(ctx context.Context, label, name, text string) error {
	if f.err != nil {
		return f.err
	}
	f.vectors = append(f.vectors, label+"/"+name+"="+text)
	return nil
}

func (f *fakeGraphStore) Query(ctx context.Context, question, indexName string) (*graph.QueryResult, error) {
	return f.queryRes, f.err
}

func newGraphRouter(store GraphStore) (*gin.Engine, *observability.ChatMetrics) {
	gin.SetMode(gin.TestMode)
	metrics := newTestMetrics()
	router := gin.New()
	g := router.Group("/graph")
	g.POST("/nodes", UpsertGraphNode(store))
	g.GET("/nodes/:label", ListGraphNodes(store))
	g.GET("/node/:label/:name", GetGraphNode(store))
	g.DELETE("/node/:label/:name", DeleteGraphNode(store))
	g.POST("/relationships", CreateGraphRelationship(store))
	g.POST("/index", CreateGraphIndex(store))
	g.POST("/vectors", UpsertGraphVector(store))
	g.GET("/query", GraphQuery(store, metrics))
	return router, metrics
}

func TestGraphNodeLifecycle(t *testing.T) {
	store := newFakeGraphStore()
	router, _ := newGraphRouter(store)

	// Create
	w := httptest.NewRecorder()
	body := `{"label":"Person","name":"alice","properties":{"age":30}}`
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/nodes", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	// Fetch
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph/node/Person/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var node graph.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	assert.Equal(t, "alice", node.Name)

	// List
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph/nodes/Person", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Delete, then a fetch misses
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/graph/node/Person/alice", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph/node/Person/alice", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertGraphNodeRejectsBadBody(t *testing.T) {
	router, _ := newGraphRouter(newFakeGraphStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/nodes",
		strings.NewReader(`{"name":"missing label"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGraphRelationship(t *testing.T) {
	store := newFakeGraphStore()
	router, _ := newGraphRouter(store)

	w := httptest.NewRecorder()
	body := `{"from_label":"Person","from_name":"alice","type":"KNOWS","to_label":"Person","to_name":"bob"}`
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/relationships", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.rels, 1)
	assert.Equal(t, "alice-KNOWS->bob", store.rels[0])
}

func TestCreateGraphIndex(t *testing.T) {
	store := newFakeGraphStore()
	router, _ := newGraphRouter(store)

	w := httptest.NewRecorder()
	body := `{"index_name":"chunks","label":"Chunk"}`
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/index", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.indexes, 1)
	assert.Equal(t, "chunks on Chunk", store.indexes[0])
}

func TestCreateGraphIndexRejectsBadBody(t *testing.T) {
	router, _ := newGraphRouter(newFakeGraphStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/index",
		strings.NewReader(`{"label":"missing index name"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertGraphVector(t *testing.T) {
	store := newFakeGraphStore()
	router, _ := newGraphRouter(store)

	w := httptest.NewRecorder()
	body := `{"label":"Chunk","name":"c1","text":"the sky is blue"}`
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/vectors", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.vectors, 1)
	assert.Equal(t, "Chunk/c1=the sky is blue", store.vectors[0])
}

func TestUpsertGraphVectorFailure(t *testing.T) {
	store := newFakeGraphStore()
	store.err = assert.AnError
	router, _ := newGraphRouter(store)

	w := httptest.NewRecorder()
	body := `{"label":"Chunk","name":"c1","text":"the sky is blue"}`
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/graph/vectors", strings.NewReader(body)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGraphQuery(t *testing.T) {
	store := newFakeGraphStore()
	store.queryRes = &graph.QueryResult{
		Answer:  "blue",
		Context: []string{"the sky is blue"},
	}
	router, metrics := newGraphRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/graph/query?q=what+color+is+the+sky&index=chunks", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blue")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.TurnsTotal.WithLabelValues(string(observability.EndpointGraphQuery), "success")))
}

func TestGraphQueryFailureCountsTurn(t *testing.T) {
	store := newFakeGraphStore()
	store.err = assert.AnError
	router, metrics := newGraphRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/graph/query?q=anything&index=chunks", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.TurnsTotal.WithLabelValues(string(observability.EndpointGraphQuery), "error")))
}

func TestGraphQueryRequiresParams(t *testing.T) {
	router, _ := newGraphRouter(newFakeGraphStore())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph/query?q=only+question", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
