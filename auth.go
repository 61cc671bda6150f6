package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// authCookiePrefix and authCookieSuffix bracket the Supabase project ref in
// the session cookie name: sb-<ref>-auth-token.
const (
	authCookiePrefix = "sb-"
	authCookieSuffix = "-auth-token"
)

// supabaseClaims is the subset of a Supabase access token we read.
type supabaseClaims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

var errNoToken = errors.New("no authentication token provided")

// accessToken extracts the bearer token from the Authorization header, or
// failing that from the Supabase session cookie.
func accessToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", errors.New("invalid authorization header")
		}
		return strings.TrimPrefix(header, "Bearer "), nil
	}
	for _, ck := range r.Cookies() {
		if strings.HasPrefix(ck.Name, authCookiePrefix) && strings.HasSuffix(ck.Name, authCookieSuffix) {
			return tokenFromCookie(ck.Value)
		}
	}
	return "", errNoToken
}

// tokenFromCookie decodes a Supabase session cookie. The value is URL-encoded
// JSON, optionally base64 with a "base64-" marker, holding either an object
// with access_token or the older [access_token, refresh_token, ...] array.
func tokenFromCookie(value string) (string, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return "", err
	}
	if b64, ok := strings.CutPrefix(raw, "base64-"); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(b64, "="))
		if err != nil {
			return "", err
		}
		raw = string(decoded)
	}

	var session struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(raw), &session); err == nil && session.AccessToken != "" {
		return session.AccessToken, nil
	}
	var legacy []*string
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil && len(legacy) > 0 && legacy[0] != nil {
		return *legacy[0], nil
	}
	return "", errors.New("malformed auth cookie")
}

// verifyToken checks the HS256 signature and expiry and returns the claims.
func (h *Handler) verifyToken(token string) (*supabaseClaims, error) {
	claims := &supabaseClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// authMiddleware validates the Supabase access token, resolves the local user
// (creating it on first sight) and sets user_id on the context.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := accessToken(c.Request)
		if err != nil {
			apiError(c, http.StatusUnauthorized, "missing or invalid authorization")
			c.Abort()
			return
		}
		claims, err := h.verifyToken(token)
		if err != nil {
			h.log.Debug("token rejected", zap.Error(err))
			apiError(c, http.StatusUnauthorized, "invalid token")
			c.Abort()
			return
		}

		var email, name *string
		if claims.Email != "" {
			email = &claims.Email
			local, _, _ := strings.Cut(claims.Email, "@")
			name = &local
		}
		if claims.UserMetadata.Name != "" {
			name = &claims.UserMetadata.Name
		}

		u, err := h.store.UpsertUser(c.Request.Context(), claims.Subject, email, name)
		if err != nil {
			h.log.Error("resolve user failed", zap.String("open_id", claims.Subject), zap.Error(err))
			apiError(c, http.StatusInternalServerError, "failed to resolve user")
			c.Abort()
			return
		}

		c.Set("user_id", u.ID)
		c.Set("user", u)
		c.Next()
	}
}

// authMe returns the authenticated user.
// GET /api/auth/me.
func (h *Handler) authMe(c *gin.Context) {
	c.JSON(http.StatusOK, c.MustGet("user"))
}

// logout clears any Supabase session cookies on this origin.
// POST /api/auth/logout (public).
func (h *Handler) logout(c *gin.Context) {
	for _, ck := range c.Request.Cookies() {
		if strings.HasPrefix(ck.Name, authCookiePrefix) && strings.HasSuffix(ck.Name, authCookieSuffix) {
			c.SetCookie(ck.Name, "", -1, "/", "", c.Request.TLS != nil, true)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
