package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lineflow-backend/internal/pkg/authtoken"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type AuthMiddleware struct {
	log    *logger.Logger
	secret string
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), secret: secret}
}

// RequireInternal admits requests carrying a valid internal bearer token.
// With no secret configured the internal API is closed.
func (am *AuthMiddleware) RequireInternal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"message": "internal api disabled", "code": "forbidden"},
			})
			return
		}
		claims, err := authtoken.Parse(am.secret, bearerToken(c))
		if err != nil {
			am.log.Debug("internal token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
