package verifier

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"

	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/token"
)

const ginClaimsKey = "identity.claims"

// RequireAuth rejects requests without a valid bearer token. All failures get the
// same 401 body; the reason is attached to the gin context errors for logging.
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := v.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			_ = c.Error(err)
			AbortUnauthenticated(c)
			return
		}
		c.Set(ginClaimsKey, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireRole lets through only callers whose token carries role. Must follow RequireAuth.
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			AbortUnauthenticated(c)
			return
		}
		if claims.Role != role {
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// RequireSelf lets through callers whose subject equals the named path parameter.
// Admins pass regardless. Must follow RequireAuth.
func RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			AbortUnauthenticated(c)
			return
		}
		if claims.IsAdmin() {
			c.Next()
			return
		}
		id, err := uuid.FromString(c.Param(param))
		if err != nil || id != claims.Subject {
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// Claims returns the claims set by RequireAuth.
func Claims(c *gin.Context) (token.Claims, bool) {
	v, ok := c.Get(ginClaimsKey)
	if !ok {
		return token.Claims{}, false
	}
	claims, ok := v.(token.Claims)
	return claims, ok
}

// AbortUnauthenticated writes the uniform 401 response.
func AbortUnauthenticated(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": CodeUnauthenticated, "message": MsgUnauthenticated})
}

func abortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": CodeForbidden, "message": MsgForbidden})
}
