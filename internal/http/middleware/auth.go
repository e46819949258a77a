package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Faizanmal/SyncQuote-sub003/internal/service"
)

const userIDKey = "sessionUserID"

// Session validates the first-party session token and attaches the user ID.
type Session struct {
	Auth *service.AuthService
}

// RequireSession ensures the request carries a valid bearer session token.
// OAuth access tokens fail here: the token type discriminator rejects them.
func (m *Session) RequireSession(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	userID, err := m.Auth.ValidateSession(c.Request.Context(), parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}

	c.Set(userIDKey, userID)
	c.Next()
}

// CurrentUserID returns the authenticated user's ID set by RequireSession.
func CurrentUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok
}
