// Package server assembles the Gin router and owns the HTTP listener
// lifecycle.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authhandler "janua/engine/internal/auth/handler"
	"janua/engine/internal/config"
	"janua/engine/internal/revocation"
	"janua/engine/internal/security"
	"janua/engine/internal/server/middleware"
	sessionhandler "janua/engine/internal/session/handler"
)

// Deps carries everything the router needs.
type Deps struct {
	Config   *config.Config
	Tokens   *security.TokenProvider
	Denylist revocation.Denylist
	Auth     *authhandler.Handler
	Sessions *sessionhandler.Handler
}

// NewRouter builds the HTTP routing tree. Public auth endpoints resolve the
// tenant from the gateway header and are rate limited per client; protected
// endpoints authenticate through the bearer token, which carries its own
// tenant binding.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.ClientIP())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	public := v1.Group("")
	public.Use(
		middleware.RateLimit(d.Config.RateLimitRPS, d.Config.RateLimitBurst),
		middleware.TenantFromHeader(d.Config.TenantHeader, d.Config.TenantHeaderSecret),
	)
	d.Auth.RegisterPublic(public)

	token := v1.Group("")
	token.Use(middleware.RateLimit(d.Config.RateLimitRPS, d.Config.RateLimitBurst))
	d.Auth.RegisterToken(token)

	protected := v1.Group("")
	protected.Use(middleware.BearerAuth(d.Tokens, d.Denylist))
	d.Auth.RegisterProtected(protected)
	d.Sessions.Register(protected)

	return r
}

// Run serves the router until ctx is cancelled, then drains in-flight
// requests for up to the grace period.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
