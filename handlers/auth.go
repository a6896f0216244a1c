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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/apperrors"
	"github.com/AleutianAI/AleutianChat/middleware"
	"github.com/AleutianAI/AleutianChat/supabase"
)

// AuthBackend creates authenticated backend sessions. supabase.Factory is
// the production implementation; tests inject fakes.
type AuthBackend interface {
	SignIn(ctx context.Context, email, password string) (supabase.Session, supabase.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (supabase.Session, supabase.Tokens, error)
}

const (
	// refreshCookieName holds the refresh token between sign-ins. HttpOnly
	// so the browser never exposes it to scripts; scoped to the auth routes.
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/supabase"

	// refreshCookieMaxAge matches the hosted backend's refresh token
	// lifetime of 30 days.
	refreshCookieMaxAge = 30 * 24 * 60 * 60
)

func setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, token, refreshCookieMaxAge, refreshCookiePath, "", true, true)
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", true, true)
}

// SignIn authenticates with email and password query parameters, caches the
// signed-in session under its access token, and hands the refresh token to
// the client as an HttpOnly cookie.
func SignIn(backend AuthBackend, cache *middleware.SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("email")
		password := c.Query("password")
		if email == "" || password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		session, tokens, err := backend.SignIn(c.Request.Context(), email, password)
		if err != nil {
			slog.Warn("Sign in failed", "email", email, "error", err)
			c.JSON(apperrors.StatusCode(err), gin.H{"error": "Unauthorized"})
			return
		}

		cache.Put(tokens.AccessToken, session, tokens.ExpiresIn)
		setRefreshCookie(c, tokens.RefreshToken)
		slog.Info("User signed in", "userId", tokens.UserID)
		c.JSON(http.StatusOK, gin.H{"access_token": tokens.AccessToken})
	}
}

// Refresh exchanges the refresh-token cookie for a new access token, caches
// the refreshed session, and rotates the cookie.
func Refresh(backend AuthBackend, cache *middleware.SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		refreshToken, err := c.Cookie(refreshCookieName)
		if err != nil || refreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		session, tokens, err := backend.Refresh(c.Request.Context(), refreshToken)
		if err != nil {
			slog.Warn("Token refresh failed", "error", err)
			c.JSON(apperrors.StatusCode(err), gin.H{"error": "Unauthorized"})
			return
		}

		cache.Put(tokens.AccessToken, session, tokens.ExpiresIn)
		setRefreshCookie(c, tokens.RefreshToken)
		c.JSON(http.StatusOK, gin.H{"access_token": tokens.AccessToken})
	}
}

// SignOut invalidates the hosted session, drops the cache entry, and clears
// the refresh cookie. Runs behind the auth middleware.
func SignOut(cache *middleware.SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := middleware.GetSession(c)
		token := middleware.GetAccessToken(c)

		if err := session.SignOut(c.Request.Context()); err != nil {
			// The hosted session may already be gone; drop our state anyway.
			slog.Warn("Hosted sign out failed", "error", err)
		}
		cache.Remove(token)
		clearRefreshCookie(c)
		c.JSON(http.StatusOK, gin.H{"message": "Sign out"})
	}
}
