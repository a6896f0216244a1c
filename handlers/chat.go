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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/datatypes"
	"github.com/AleutianAI/AleutianChat/middleware"
)

var chatTracer = otel.Tracer("aleutian.chat.handlers")

// ListConversations returns the authenticated user's conversations, most
// recently updated first.
func ListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "ListConversations")
		defer span.End()

		session := middleware.GetSession(c)
		summaries, err := session.ListConversations(ctx, session.UserID())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list conversations", "userId", session.UserID(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
			return
		}
		if summaries == nil {
			summaries = []datatypes.ConversationSummary{}
		}
		c.JSON(http.StatusOK, summaries)
	}
}

// GetConversation returns one conversation's history flattened to chat
// messages. An unknown id yields an empty list; an envelope with no chat
// rendering fails the request rather than being guessed at or dropped.
func GetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "GetConversation")
		defer span.End()

		conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be an integer"})
			return
		}

		session := middleware.GetSession(c)
		history, _, err := session.LoadHistory(ctx, conversationID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to load conversation", "conversationId", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}

		messages := make([]datatypes.ChatMessage, 0, len(history))
		for _, env := range history {
			msg, err := datatypes.ToChatMessage(env)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				slog.Error("Conversation contains a message with no chat rendering",
					"conversationId", conversationID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			messages = append(messages, msg)
		}
		c.JSON(http.StatusOK, messages)
	}
}
