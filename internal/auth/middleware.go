package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

// SessionReader checks that a token's owner still holds a live login
// session. A valid token without one is rejected: logout and TTL expiry
// revoke access immediately.
type SessionReader interface {
	GetUserSession(ctx context.Context, schoolNumber string) (*attendance.UserSession, error)
}

const userKey = "user"

// RequireSession enforces bearer JWT tokens backed by a live user session
// and stores the session's user in the request context.
func RequireSession(signingKey, issuer string, sessions SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		session, err := sessions.GetUserSession(c.Request.Context(), claims.SchoolNumber)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
			return
		}
		c.Set(userKey, session.User)
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by RequireSession.
func CurrentUser(c *gin.Context) (attendance.User, bool) {
	val, ok := c.Get(userKey)
	if !ok {
		return attendance.User{}, false
	}
	user, ok := val.(attendance.User)
	return user, ok
}

// RequireRole rejects callers whose directory role does not match.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || user.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operation not permitted for this role"})
			return
		}
		c.Next()
	}
}
