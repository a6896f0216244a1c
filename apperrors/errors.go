// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apperrors defines the error taxonomy shared across the chat service.
//
// # Description
//
// Four sentinel errors cover every failure class the route boundary cares
// about. Packages wrap the sentinels with context via the helper constructors
// so that handlers can map errors to HTTP status codes with errors.Is without
// inspecting concrete types.
//
//	ErrUnauthorized     -> 401
//	ErrNotFound         -> 404 (or an empty result, endpoint dependent)
//	ErrAgent            -> 500
//	ErrUnrepresentable  -> 500 (message envelope conversion failure)
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized covers bad credentials, expired or invalid tokens,
	// and missing or malformed Authorization headers.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound covers unknown conversations and entities.
	ErrNotFound = errors.New("not found")

	// ErrAgent covers failures from the external agent runtime.
	ErrAgent = errors.New("agent runtime failure")

	// ErrUnrepresentable covers message envelopes that cannot be converted
	// into a chat message. Conversion must fail loudly, never guess.
	ErrUnrepresentable = errors.New("not representable as a chat message")
)

// Unauthorized wraps ErrUnauthorized with a formatted message.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Agent wraps ErrAgent around a runtime failure. The cause is preserved in
// the message so the route boundary can surface it.
func Agent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrAgent, err)
}

// Unrepresentable wraps ErrUnrepresentable with a description of the
// offending envelope shape.
func Unrepresentable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnrepresentable, fmt.Sprintf(format, args...))
}

// StatusCode maps an error onto the HTTP status the route boundary returns.
//
// Unknown errors map to 500.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
