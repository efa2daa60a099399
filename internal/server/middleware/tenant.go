package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"janua/engine/internal/tenant"
)

// GatewaySecretHeader carries the shared secret a fronting gateway proves
// itself with before its tenant header is trusted.
const GatewaySecretHeader = "X-Gateway-Secret"

// TenantFromHeader resolves the tenant for unauthenticated endpoints from a
// gateway-set header. The header is only honored when the gateway presents
// the shared secret; requests without a resolvable tenant are rejected
// before any handler runs (fail closed).
func TenantFromHeader(headerName, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if headerName == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant could not be resolved"})
			return
		}
		presented := c.GetHeader(GatewaySecretHeader)
		trusted := subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
		resolver := tenant.Resolver{TrustHeader: trusted}
		tenantID, err := resolver.Resolve("", c.GetHeader(headerName))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant could not be resolved"})
			return
		}
		c.Request = c.Request.WithContext(tenant.WithTenant(c.Request.Context(), tenantID))
		c.Next()
	}
}
