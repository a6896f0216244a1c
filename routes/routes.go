// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianChat/handlers"
	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/middleware"
	"github.com/AleutianAI/AleutianChat/observability"
)

// Deps carries everything the route table wires into handlers.
type Deps struct {
	AuthBackend handlers.AuthBackend
	Cache       *middleware.SessionCache
	Registry    *llm.Registry
	Graph       handlers.GraphStore
	CharChat    handlers.CharChatDeps
	Metrics     *observability.ChatMetrics
}

// SetupRoutes registers the full HTTP/WebSocket surface.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Hosted-auth surface
	supabaseGroup := router.Group("/supabase")
	{
		supabaseGroup.GET("/signin", handlers.SignIn(deps.AuthBackend, deps.Cache))
		supabaseGroup.GET("/refresh", handlers.Refresh(deps.AuthBackend, deps.Cache))
		supabaseGroup.GET("/signout",
			middleware.AuthMiddleware(deps.Cache), handlers.SignOut(deps.Cache))
	}

	// Conversation surface
	chat := router.Group("/chat", middleware.AuthMiddleware(deps.Cache))
	{
		chat.GET("/conversations", handlers.ListConversations())
		chat.GET("/conversation/:id", handlers.GetConversation())
	}

	// Streaming chat; auth is resolved inside the handler so a bad token
	// still gets a frame instead of a failed handshake.
	router.GET("/ws/chat", handlers.ChatWebSocket(deps.Cache, deps.Registry, deps.Metrics))

	// Character roleplay chat (dev-singleton session)
	router.GET("/char/chat/:conversation_id", handlers.CharChat(deps.CharChat))

	// Graph administration routes
	if deps.Graph != nil {
		graphGroup := router.Group("/graph")
		{
			graphGroup.POST("/nodes", handlers.UpsertGraphNode(deps.Graph))
			graphGroup.GET("/nodes/:label", handlers.ListGraphNodes(deps.Graph))
			graphGroup.GET("/node/:label/:name", handlers.GetGraphNode(deps.Graph))
			graphGroup.DELETE("/node/:label/:name", handlers.DeleteGraphNode(deps.Graph))
			graphGroup.POST("/relationships", handlers.CreateGraphRelationship(deps.Graph))
			graphGroup.POST("/index", handlers.CreateGraphIndex(deps.Graph))
			graphGroup.POST("/vectors", handlers.UpsertGraphVector(deps.Graph))
			graphGroup.GET("/query", handlers.GraphQuery(deps.Graph, deps.Metrics))
		}
	}
}
