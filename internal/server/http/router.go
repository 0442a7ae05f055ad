// Package httpserver exposes the session endpoints and the account directory over HTTP.
package httpserver

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/service"
	"github.com/cigarclub/identity/internal/verifier"
)

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Sessions service.SessionService
	Accounts service.AccountService
	Verifier *verifier.Verifier
	Health   func(ctx context.Context) error // optional store ping
	Log      *zap.Logger
}

// NewRouter builds the gin engine with logging and panic recovery.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{sessions: d.Sessions, accounts: d.Accounts, health: d.Health, log: log}

	r := gin.New()
	r.Use(Logging(log), Recover(log))

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)
	auth.GET("/me", verifier.RequireAuth(d.Verifier), h.Me)

	users := api.Group("/users", verifier.RequireAuth(d.Verifier))
	users.GET("", verifier.RequireRole(model.RoleAdmin), h.ListUsers)
	users.GET("/:id", verifier.RequireSelf("id"), h.GetUser)

	return r
}
