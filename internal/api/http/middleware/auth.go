package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pocketops/checkin-bridge/internal/auth"
)

const agentTokenHeader = "X-Agent-Token"

func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := auth.ValidateToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// AgentOrJWTAuth admits either the device agent (shared token header) or a
// logged-in dashboard user. Used for the routes the agent polls directly.
func AgentOrJWTAuth(agentToken, secret string) gin.HandlerFunc {
	jwtAuth := JWTAuth(secret)
	return func(c *gin.Context) {
		provided := c.GetHeader(agentTokenHeader)
		if provided != "" && agentToken != "" &&
			subtle.ConstantTimeCompare([]byte(provided), []byte(agentToken)) == 1 {
			c.Next()
			return
		}
		jwtAuth(c)
	}
}

// CheckAgentToken validates the shared agent token in constant time.
func CheckAgentToken(expected, provided string) bool {
	return expected != "" &&
		subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
