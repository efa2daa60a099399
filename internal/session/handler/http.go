// Package handler exposes session introspection and revocation over HTTP.
// All endpoints require a verified access token.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"janua/engine/internal/auth/service"
)

type Handler struct {
	auth *service.AuthService
}

func New(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// Register mounts the session endpoints on an authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/sessions")
	s.GET("", h.List)
	s.DELETE("", h.RevokeAll)
	s.DELETE("/:id", h.Revoke)
}

func (h *Handler) List(c *gin.Context) {
	sessions, err := h.auth.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":           s.ID,
			"device":       s.Device,
			"ip_address":   s.IPAddress,
			"created_at":   s.CreatedAt,
			"last_seen_at": s.LastSeenAt,
			"is_active":    s.IsActive,
			"is_current":   s.IsCurrent,
			"anomaly_flag": s.AnomalyFlag,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *Handler) Revoke(c *gin.Context) {
	err := h.auth.RevokeSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) RevokeAll(c *gin.Context) {
	err := h.auth.RevokeAllSessions(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusNoContent)
}
