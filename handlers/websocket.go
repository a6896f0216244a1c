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
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianChat/agent"
	"github.com/AleutianAI/AleutianChat/datatypes"
	"github.com/AleutianAI/AleutianChat/llm"
	"github.com/AleutianAI/AleutianChat/middleware"
	"github.com/AleutianAI/AleutianChat/observability"
	"github.com/AleutianAI/AleutianChat/supabase"
)

// wsChatModel is the plain-chat model behind the websocket endpoint. No
// tools, so the Gemini backend serves it.
const wsChatModel = "gemini-1.5-flash"

// conversationIDHeader optionally preloads an existing conversation's
// history into the connection.
const conversationIDHeader = "X-Conversation-Id"

// titleMaxLen bounds the derived conversation title.
const titleMaxLen = 60

// flushTimeout bounds the best-effort history save on disconnect. The
// request context is already dead by then, so the flush runs on its own
// deadline.
const flushTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// ChatWebSocket is the streaming chat endpoint.
//
// # Description
//
// The bearer token is resolved through the session cache before the
// handshake completes; a bad token gets a JSON error frame and the
// connection closes. On success the server sends {user_id, session_id} with
// a fresh session id, then loops: each client frame must echo both ids (a
// mismatch gets {"error": "Unauthorized"} but keeps the connection open),
// empty messages are ignored, and every other frame runs one agent turn
// whose reply is written back as a raw text frame.
//
// History accumulates in memory across turns; turns within one connection
// are strictly ordered by the read loop. On disconnect the accumulated
// history is flushed to the conversation store as a best effort.
func ChatWebSocket(cache *middleware.SessionCache, registry *llm.Registry,
	metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		token := middleware.ExtractBearerToken(c)
		session, authErr := cache.Get(token)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		if authErr != nil {
			_ = sendJSON(ws, gin.H{"error": "Unauthorized"})
			return
		}

		userID := session.UserID()
		sessionID := uuid.New().String()
		slog.Info("Websocket client connected", "userId", userID, "sessionId", sessionID)

		metrics.WebsocketOpened()
		defer metrics.WebsocketClosed()

		// Preload history when the client resumes a conversation.
		var conversationID *int64
		var history []datatypes.Envelope
		var seenUpdatedAt string
		if raw := c.GetHeader(conversationIDHeader); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				_ = sendJSON(ws, gin.H{"error": "conversation id must be an integer"})
				return
			}
			history, seenUpdatedAt, err = session.LoadHistory(c.Request.Context(), id)
			if err != nil {
				slog.Error("Failed to preload conversation", "conversationId", id, "error", err)
				_ = sendJSON(ws, gin.H{"error": "failed to load conversation"})
				return
			}
			conversationID = &id
		}

		if err := sendJSON(ws, datatypes.WSHello{UserID: userID, SessionID: sessionID}); err != nil {
			return
		}

		defer func() {
			flushHistory(session, userID, conversationID, seenUpdatedAt, history)
		}()

		chatAgent := agent.New("ws_chat", wsChatModel, registry)

		for {
			var msg datatypes.WSClientMessage
			if err := ws.ReadJSON(&msg); err != nil {
				slog.Info("Websocket client disconnected", "sessionId", sessionID, "error", err.Error())
				break
			}

			if msg.UserID != userID || msg.SessionID != sessionID {
				slog.Warn("Websocket frame with mismatched identity",
					"sessionId", sessionID, "claimedUser", msg.UserID)
				if err := sendJSON(ws, gin.H{"error": "Unauthorized"}); err != nil {
					break
				}
				continue
			}
			if strings.TrimSpace(msg.Message) == "" {
				continue
			}

			start := time.Now()
			result, err := chatAgent.Run(c.Request.Context(), msg.Message, history)
			if err != nil {
				metrics.RecordAgentError("ws_chat")
				metrics.RecordTurn(observability.EndpointWSChat, false)
				slog.Error("Chat agent run failed", "sessionId", sessionID, "error", err)
				if err := sendJSON(ws, gin.H{"error": "agent failed to respond"}); err != nil {
					break
				}
				continue
			}
			history = result.Messages
			metrics.RecordTurn(observability.EndpointWSChat, true)
			metrics.RecordTurnDuration(observability.EndpointWSChat, time.Since(start).Seconds())

			if err := ws.WriteMessage(websocket.TextMessage, []byte(result.Reply)); err != nil {
				slog.Warn("Failed to write the reply frame", "sessionId", sessionID, "error", err)
				break
			}
		}
	}
}

// flushHistory persists whatever the connection accumulated. Best effort:
// failures are logged, never surfaced, since the peer is already gone.
func flushHistory(session supabase.Session, userID string,
	conversationID *int64, seenUpdatedAt string, history []datatypes.Envelope) {

	if len(history) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	id, err := session.SaveHistory(ctx, supabase.SaveHistoryRequest{
		UserID:         userID,
		Title:          deriveTitle(history),
		History:        history,
		ConversationID: conversationID,
		SeenUpdatedAt:  seenUpdatedAt,
	})
	if err != nil {
		slog.Error("Failed to flush conversation history", "userId", userID, "error", err)
		return
	}
	slog.Info("Flushed conversation history", "conversationId", id, "envelopes", len(history))
}

// deriveTitle titles a conversation with its first user prompt, truncated.
func deriveTitle(history []datatypes.Envelope) string {
	for _, env := range history {
		if env.Kind != datatypes.EnvelopeRequest {
			continue
		}
		for _, p := range env.Parts {
			if p.Kind == datatypes.PartUserPrompt && p.Content != "" {
				// Truncate on rune boundaries so a multibyte prompt
				// cannot produce an invalid-UTF-8 title.
				runes := []rune(p.Content)
				if len(runes) > titleMaxLen {
					runes = runes[:titleMaxLen]
				}
				return string(runes)
			}
		}
	}
	return "New conversation"
}
