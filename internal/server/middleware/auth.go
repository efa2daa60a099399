// Package middleware holds the Gin middleware for bearer auth, tenant
// resolution, and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"janua/engine/internal/revocation"
	"janua/engine/internal/security"
	"janua/engine/internal/tenant"
)

// BearerAuth verifies the access token, rejects denylisted token ids, and
// binds the caller's tenant, user, session, and roles into the request
// context. Every failure is the same 401; callers learn nothing about why.
func BearerAuth(tokens *security.TokenProvider, denylist revocation.Denylist) gin.HandlerFunc {
	if denylist == nil {
		denylist = revocation.None{}
	}
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		revoked, err := denylist.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil || revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		ctx := tenant.WithIdentity(c.Request.Context(), claims.TenantID, claims.Subject, claims.SessionID, claims.Roles)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
