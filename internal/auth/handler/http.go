// Package handler exposes the auth operations over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"janua/engine/internal/auth/service"
	"janua/engine/internal/mfa"
)

// Handler holds the HTTP surface for sign-in, MFA, refresh, and sign-out.
type Handler struct {
	auth *service.AuthService
}

// New returns a Handler over the auth service.
func New(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// RegisterPublic mounts the endpoints reachable without a bearer token.
// The group must already carry tenant resolution middleware.
func (h *Handler) RegisterPublic(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/register", h.Register)
	a.POST("/signin", h.SignIn)
	a.POST("/mfa/verify", h.VerifyMFA)
}

// RegisterToken mounts the endpoints that authenticate through the token in
// the request body rather than a bearer header or tenant header.
func (h *Handler) RegisterToken(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/refresh", h.Refresh)
	a.POST("/signout", h.SignOut)
}

// RegisterProtected mounts the endpoints requiring a verified access token.
func (h *Handler) RegisterProtected(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/password", h.ChangePassword)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password, signInMeta(c))
	if err != nil {
		// Wrong email and wrong password are indistinguishable on purpose.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	if result.MFARequired {
		c.JSON(http.StatusOK, gin.H{
			"mfa_required": true,
			"challenge_id": result.ChallengeID,
			"methods":      result.Methods,
		})
		return
	}
	c.JSON(http.StatusOK, tokenBody(result.Tokens))
}

type verifyMFARequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

func (h *Handler) VerifyMFA(c *gin.Context) {
	var req verifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tokens, err := h.auth.VerifyMFA(c.Request.Context(), req.ChallengeID, req.Code)
	if err != nil {
		if errors.Is(err, mfa.ErrChallengeExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge expired"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tokens))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrTokenReuseDetected) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "re-authentication required"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tokens))
}

// SignOut always returns 204. Token probing through this endpoint yields
// nothing.
func (h *Handler) SignOut(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	h.auth.SignOut(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := h.auth.ChangePassword(c.Request.Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func tokenBody(t *service.Tokens) gin.H {
	return gin.H{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"token_type":    "Bearer",
		"expires_at":    t.ExpiresAt,
		"session_id":    t.SessionID,
	}
}

func signInMeta(c *gin.Context) mfa.SignInMeta {
	return mfa.SignInMeta{
		DeviceFingerprint: c.GetHeader("X-Device-Fingerprint"),
		IPAddress:         c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
	}
}
