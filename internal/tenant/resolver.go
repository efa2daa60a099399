package tenant

import "strings"

// Resolver decides the active tenant for a request. Priority order: verified
// access-token claim, then the explicit tenant header when the caller is a
// trusted service. Anything else is a hard failure; there is no default or
// wildcard tenant.
type Resolver struct {
	// TrustHeader allows tenant resolution from the service-to-service
	// header. The transport must have authenticated the peer before
	// setting it (shared-secret check in the middleware).
	TrustHeader bool
}

// Resolve returns the tenant id for a request given the token claim and the
// raw header value. claimTenant wins when present. headerTenant is only
// honored when TrustHeader is set.
func (r Resolver) Resolve(claimTenant, headerTenant string) (string, error) {
	if t := strings.TrimSpace(claimTenant); t != "" {
		return t, nil
	}
	if r.TrustHeader {
		if t := strings.TrimSpace(headerTenant); t != "" {
			return t, nil
		}
	}
	return "", ErrMissingTenantContext
}
