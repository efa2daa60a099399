package audit

import "context"

type clientIPKey struct{}

// WithClientIP binds the request's client IP so audit entries written deeper
// in the call stack can record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the bound client IP, or "" when none was set.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
