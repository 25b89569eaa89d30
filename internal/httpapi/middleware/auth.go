package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pocketllm/pocketchat/internal/auth"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/session"
)

const (
	// SessionIDKey holds the raw session id from the X-Session-Id header.
	SessionIDKey = "session_id"
	// UserUUIDKey holds the resolved user's public id.
	UserUUIDKey = "user_uuid"
)

// SessionRequired rejects requests without an X-Session-Id header. Services
// resolve the id themselves, so this only guards against the obvious case.
func SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetHeader("X-Session-Id")
		if sid == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "session required")
			c.Abort()
			return
		}
		c.Set(SessionIDKey, sid)
		c.Next()
	}
}

// SessionID returns the session id stashed by SessionRequired.
func SessionID(c *gin.Context) string {
	v, _ := c.Get(SessionIDKey)
	sid, _ := v.(string)
	return sid
}

// AdminRequired resolves the session and admits only admin users.
func AdminRequired(sessions session.Store, users *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetHeader("X-Session-Id")
		if sid == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "session required")
			c.Abort()
			return
		}
		userUUID, err := sessions.Resolve(c.Request.Context(), sid)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid session")
			c.Abort()
			return
		}
		user, err := users.UserByUUID(c.Request.Context(), userUUID)
		if err != nil || !user.IsAdmin {
			// Hide the admin surface from regular users.
			common.Fail(c, http.StatusForbidden, 40301, "forbidden")
			c.Abort()
			return
		}
		c.Set(SessionIDKey, sid)
		c.Set(UserUUIDKey, userUUID)
		c.Next()
	}
}
