package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

const maxWebhookBody = 1 << 20

// LineSignature rejects webhook bodies whose X-Line-Signature does not match
// the channel secret. The body is buffered and put back for the handler.
func LineSignature(log *logger.Logger, channelSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"message": "unreadable body", "code": "bad_request"},
			})
			return
		}
		if !line.VerifySignature(channelSecret, body, c.GetHeader(line.SignatureHeader)) {
			if log != nil {
				log.Warn("webhook signature mismatch", "remote", c.ClientIP())
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid signature", "code": "unauthorized"},
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
