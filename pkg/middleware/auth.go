package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudidm/onboard/internal/sessions"
	"github.com/cloudidm/onboard/internal/tokens"
)

// SessionCookie is the portal session cookie name.
const SessionCookie = "onboard_session"

const contextSessionKey = "session"

// SessionStore is the minimal interface the middleware depends on
type SessionStore interface {
	Validate(ctx context.Context, id string) (*sessions.Session, error)
}

// SessionAuth returns a Gin middleware that resolves the portal session
// from the session cookie or from a Bearer access token whose sid claim
// references the session. The resolved session lands in the context.
func SessionAuth(store SessionStore, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)
		if id == "" {
			auth := c.GetHeader("Authorization")
			if auth == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session cookie or Authorization header"})
				return
			}
			var raw string
			if n, _ := fmt.Sscanf(auth, "Bearer %s", &raw); n != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
				return
			}
			sid, err := tokens.ParseAccessToken(jwtSecret, raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
				return
			}
			id = sid
		}

		sess, err := store.Validate(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			return
		}
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or unknown"})
			return
		}

		c.Set(contextSessionKey, sess)
		c.Next()
	}
}

// SessionFrom returns the authenticated session stored by SessionAuth.
func SessionFrom(c *gin.Context) (*sessions.Session, bool) {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*sessions.Session)
	return sess, ok
}
