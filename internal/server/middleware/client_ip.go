package middleware

import (
	"github.com/gin-gonic/gin"

	"janua/engine/internal/audit"
)

// ClientIP copies Gin's resolved client IP into the request context so the
// audit layer can record it without a handler dependency.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}
