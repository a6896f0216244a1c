// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/apperrors"
)

func TestToChatMessage(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("user prompt request becomes user message", func(t *testing.T) {
		msg, err := ToChatMessage(NewUserRequest("hi", at))
		require.NoError(t, err)
		assert.Equal(t, RoleUser, msg.Role)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, at, msg.Timestamp)
	})

	t.Run("text response becomes model message", func(t *testing.T) {
		msg, err := ToChatMessage(NewModelResponse("hello", "gpt-4o", at))
		require.NoError(t, err)
		assert.Equal(t, RoleModel, msg.Role)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, at, msg.Timestamp)
	})

	t.Run("tool call response is not representable", func(t *testing.T) {
		env := NewToolCallResponse("gpt-4o", at, Part{
			Kind: PartToolCall, ToolName: "web_search", ToolCallID: "call-1", Args: `{"q":"tides"}`,
		})
		_, err := ToChatMessage(env)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrUnrepresentable))
	})

	t.Run("system prompt request is not representable", func(t *testing.T) {
		_, err := ToChatMessage(NewSystemRequest("be terse", at))
		require.ErrorIs(t, err, apperrors.ErrUnrepresentable)
	})

	t.Run("empty envelope fails loudly", func(t *testing.T) {
		_, err := ToChatMessage(Envelope{Kind: EnvelopeRequest, Timestamp: at})
		require.ErrorIs(t, err, apperrors.ErrUnrepresentable)
	})
}

func TestHistoryCodec(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("round trip preserves a mixed history", func(t *testing.T) {
		history := []Envelope{
			NewSystemRequest("You are helpful.", at),
			NewUserRequest("what's the weather", at.Add(time.Second)),
			NewToolCallResponse("gpt-4o", at.Add(2*time.Second), Part{
				Kind: PartToolCall, ToolName: "web_search", ToolCallID: "call-1", Args: `{"q":"weather"}`,
			}),
			NewToolReturnRequest(at.Add(3*time.Second), Part{
				Kind: PartToolReturn, ToolName: "web_search", ToolCallID: "call-1", Content: "sunny",
			}),
			NewModelResponse("It's sunny today.", "gpt-4o", at.Add(4*time.Second)),
		}

		blob, err := MarshalHistory(history)
		require.NoError(t, err)

		decoded, err := UnmarshalHistory(blob)
		require.NoError(t, err)
		assert.Equal(t, history, decoded)
	})

	t.Run("empty blob yields empty history", func(t *testing.T) {
		decoded, err := UnmarshalHistory("")
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})

	t.Run("unknown part kind rejected on decode", func(t *testing.T) {
		blob := `[{"kind":"response","timestamp":"2025-03-14T09:26:53Z","parts":[{"kind":"hologram","content":"??"}]}]`
		_, err := UnmarshalHistory(blob)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hologram")
	})

	t.Run("unknown envelope kind rejected on decode", func(t *testing.T) {
		blob := `[{"kind":"broadcast","timestamp":"2025-03-14T09:26:53Z","parts":[{"kind":"text","content":"hi"}]}]`
		_, err := UnmarshalHistory(blob)
		require.Error(t, err)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		_, err := UnmarshalHistory(`[{`)
		require.Error(t, err)
	})
}

func TestEnvelopeValidate(t *testing.T) {
	at := time.Now()

	t.Run("no parts", func(t *testing.T) {
		e := Envelope{Kind: EnvelopeRequest, Timestamp: at}
		require.Error(t, e.Validate())
	})

	t.Run("valid request", func(t *testing.T) {
		e := NewUserRequest("hi", at)
		require.NoError(t, e.Validate())
	})
}

func TestWSClientMessageValidate(t *testing.T) {
	t.Run("requires user and session ids", func(t *testing.T) {
		m := WSClientMessage{Message: "hello"}
		require.Error(t, m.Validate())
	})

	t.Run("session id must be a uuid", func(t *testing.T) {
		m := WSClientMessage{UserID: "u-1", SessionID: "nope", Message: "hello"}
		require.Error(t, m.Validate())
	})

	t.Run("valid frame", func(t *testing.T) {
		m := WSClientMessage{
			UserID:    "u-1",
			SessionID: "6ba7b810-9dad-41d1-80b4-00c04fd430c8",
			Message:   "hello",
		}
		require.NoError(t, m.Validate())
	})
}
