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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/agent"
	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/observability"
	"github.com/AleutianAI/AleutianChat/profile"
	"github.com/AleutianAI/AleutianChat/supabase"
	"github.com/AleutianAI/AleutianChat/tools"
)

// CharChatDeps wires the character chat endpoint.
//
// # Fields
//
//   - DevSession: The development singleton session, signed in at startup
//     with the configured dev credentials. Every character chat persists
//     under this user; the endpoint carries no per-request auth.
//   - Registry / ProfileCache / Search: Passed through to the character
//     agent. Search may be nil.
//   - Metrics: Chat metrics sink.
type CharChatDeps struct {
	DevSession   supabase.Session
	Registry     *llm.Registry
	ProfileCache *profile.Store
	Search       *tools.TavilyClient
	Metrics      *observability.ChatMetrics
}

// CharChat runs one character roleplay turn.
//
// # Description
//
// Loads the conversation history for the path id (an unknown id starts a
// fresh conversation under that id), runs the character agent playing
// ai_name against user_name, persists the updated history, and returns the
// reply as plain text.
func CharChat(deps CharChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "CharChat")
		defer span.End()

		conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be an integer"})
			return
		}
		text := c.Query("text")
		if text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		aiName := c.DefaultQuery("ai_name", "Assistant")
		userName := c.DefaultQuery("user_name", "User")

		history, seenUpdatedAt, err := deps.DevSession.LoadHistory(ctx, conversationID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to load character conversation", "conversationId", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}

		characterAgent := agent.NewCharacterAgent(deps.Registry, agent.CharacterDeps{
			Backend:  deps.DevSession,
			Cache:    deps.ProfileCache,
			AIName:   aiName,
			UserName: userName,
		}, deps.Search)

		start := time.Now()
		result, err := characterAgent.Run(ctx, text, history)
		if err != nil {
			deps.Metrics.RecordAgentError("character_chat")
			deps.Metrics.RecordTurn(observability.EndpointCharChat, false)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Character agent run failed", "conversationId", conversationID, "error", err)
			c.JSON(apperrors.StatusCode(err), gin.H{"error": err.Error()})
			return
		}
		deps.Metrics.RecordTurn(observability.EndpointCharChat, true)
		deps.Metrics.RecordTurnDuration(observability.EndpointCharChat, time.Since(start).Seconds())

		_, err = deps.DevSession.SaveHistory(ctx, supabase.SaveHistoryRequest{
			UserID:         deps.DevSession.UserID(),
			Title:          deriveTitle(result.Messages),
			History:        result.Messages,
			ConversationID: &conversationID,
			SeenUpdatedAt:  seenUpdatedAt,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to persist character conversation", "conversationId", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save conversation"})
			return
		}

		c.String(http.StatusOK, result.Reply)
	}
}
