package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contextUserIDKey = "auth.user_id"
	contextClaimsKey = "auth.claims"
)

// RequireUser rejects requests without a valid token. The token is taken
// from the Authorization header, then the session cookie, then the "token"
// query parameter (browsers cannot set headers on a WebSocket handshake).
func RequireUser(v *TokenVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := v.Verify(extractToken(c, cookieName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		c.Set(contextUserIDKey, claims.Subject)
		c.Set(contextClaimsKey, claims)
		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireUser
func UserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

// ClaimsFrom returns the verified claims set by RequireUser
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(contextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func extractToken(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, found := strings.CutPrefix(header, "Bearer "); found {
			return strings.TrimSpace(token)
		}
	}
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			return cookie
		}
	}
	return c.Query("token")
}
