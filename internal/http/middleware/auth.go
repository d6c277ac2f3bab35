// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. With a signing secret configured,
// identities come from an HS256 bearer token carrying `sub` and `role`
// claims. Without one, the demo headers X-User-ID and X-User-Role are
// trusted, which keeps local runs and tests free of token plumbing.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyUserRole = "userRole"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	// RoleManager may manage curated recommendations.
	RoleManager = "manager"
)

// Claims is the token payload accepted by Authenticate.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// Secret is the HS256 key. Empty switches to header-based identity.
	Secret string
}

// Authenticate stores the caller's user id and role in the Gin context.
// Requests without credentials continue anonymously; a malformed or invalid
// bearer token is rejected with 401.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	secret := []byte(opts.Secret)

	return func(c *gin.Context) {
		if len(secret) == 0 {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
				c.Set(ctxKeyUserID, uid)
			}
			if role := strings.TrimSpace(c.GetHeader(HeaderUserRole)); role != "" {
				c.Set(ctxKeyUserRole, strings.ToLower(role))
			}
			c.Next()
			return
		}

		authz := c.GetHeader("Authorization")
		if authz == "" {
			c.Next()
			return
		}
		raw, found := strings.CutPrefix(authz, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}

		claims, err := ParseToken(strings.TrimSpace(raw), secret)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("token rejected")
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		if claims.Role != "" {
			c.Set(ctxKeyUserRole, strings.ToLower(claims.Role))
		}
		c.Next()
	}
}

// ParseToken verifies an HS256 token and returns its claims. The subject
// must be present.
func ParseToken(raw string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// RequireRole rejects anonymous callers with 401 and callers without role
// with 403.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if Role(c) != role {
			abortAuth(c, http.StatusForbidden, "forbidden", role+" role required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// Role returns the caller's role or "".
func Role(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserRole)
	s, _ := v.(string)
	return s
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
