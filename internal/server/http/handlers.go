package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/service"
	"github.com/cigarclub/identity/internal/verifier"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}

// UserResponse is the directory view of an account.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// MeResponse echoes verified access token claims.
type MeResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Handler wires services into HTTP handlers.
type Handler struct {
	sessions service.SessionService
	accounts service.AccountService
	health   func(ctx context.Context) error
	log      *zap.Logger
}

func toAuthResponse(r model.AuthResult) AuthResponse {
	return AuthResponse{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken, Email: r.Email, Role: string(r.Role)}
}

func toUserResponse(a model.Account) UserResponse {
	name := a.FirstName
	if a.LastName != "" {
		if name != "" {
			name += " "
		}
		name += a.LastName
	}
	return UserResponse{ID: a.ID.String(), Email: a.Email, Name: name, Role: string(a.Role), CreatedAt: a.CreatedAt}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code, body := ToAPIError(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, body)
}

func badJSON(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Code: "INVALID_JSON", Message: "malformed request body"})
}

// Register creates an account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	res, err := h.sessions.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Login authenticates by email and password.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	res, err := h.sessions.Login(c.Request.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RemoteAddr: c.ClientIP(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Refresh rotates a refresh token.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	res, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthResponse(res))
}

// Logout revokes a refresh token. Unknown tokens still get 204.
func (h *Handler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}
	if err := h.sessions.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me returns the caller's verified claims.
func (h *Handler) Me(c *gin.Context) {
	claims, ok := verifier.Claims(c)
	if !ok {
		verifier.AbortUnauthenticated(c)
		return
	}
	c.JSON(http.StatusOK, MeResponse{
		ID:        claims.Subject.String(),
		Email:     claims.Email,
		Role:      string(claims.Role),
		ExpiresAt: claims.ExpiresAt,
	})
}

// ListUsers returns the account directory.
func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.accounts.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]UserResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toUserResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

// GetUser returns one account.
func (h *Handler) GetUser(c *gin.Context) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "not found"})
		return
	}
	acc, err := h.accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(*acc))
}

// Health reports store reachability.
func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
