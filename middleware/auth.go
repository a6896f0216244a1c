// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the chat service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// resolves it through the session cache, and stores the backend session in
// the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► cache.Get(token)
//	   │
//	   └─► Store session + token in context
//	           │
//	           ▼
//	       Handler (retrieves via GetSession / GetAccessToken)
//
// Tokens resolve only while their cache entry is live; an expired or unknown
// token aborts the request with 401 before any handler runs.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/sessioncache"
	"github.com/AleutianAI/AleutianChat/supabase"
)

// SessionCache is the concrete cache type the service shares between sign-in
// handlers and this middleware.
type SessionCache = sessioncache.Cache[supabase.Session]

// Context keys. Typed string constants to avoid collisions.
const (
	sessionKey     = "aleutian_session"
	accessTokenKey = "aleutian_access_token"
)

// SetSession stores the authenticated backend session in the Gin context.
func SetSession(c *gin.Context, session supabase.Session, accessToken string) {
	c.Set(sessionKey, session)
	c.Set(accessTokenKey, accessToken)
}

// GetSession retrieves the authenticated backend session, or nil when the
// request did not pass the auth middleware.
func GetSession(c *gin.Context) supabase.Session {
	if v, exists := c.Get(sessionKey); exists {
		if session, ok := v.(supabase.Session); ok {
			return session
		}
	}
	return nil
}

// GetAccessToken retrieves the bearer token the request authenticated with.
func GetAccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

// AuthMiddleware resolves the request's bearer token through the session
// cache and aborts with 401 when it does not resolve.
func AuthMiddleware(cache *SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		session, err := cache.Get(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		SetSession(c, session, token)
		c.Next()
	}
}

// ExtractBearerToken parses the Authorization header expecting the format
// "Bearer <token>". Returns "" when the header is missing or malformed. The
// "Bearer" prefix is case-insensitive per RFC 7235.
func ExtractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
