package middleware

import (
	"strings"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// AuthMiddleware resolves the bearer credential through gate and stores the
// Principal in the context.
func AuthMiddleware(gate services.IdentityGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.Unauthorized("Authorization header required"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, apperrors.Unauthorized("Invalid authorization header format"))
			return
		}

		p, err := gate.Verify(c.Request.Context(), parts[1])
		if err != nil {
			abort(c, apperrors.Unauthorized("Invalid or expired token"))
			return
		}

		SetPrincipal(c, p)
		c.Next()
	}
}

// EmployeeOnly lets only internal staff through.
func EmployeeOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			abort(c, apperrors.Unauthorized("Unauthorized"))
			return
		}
		if p.Kind != models.PrincipalEmployee {
			abort(c, apperrors.Forbidden("Employee access required"))
			return
		}
		c.Next()
	}
}

func SetPrincipal(c *gin.Context, p models.Principal) {
	c.Set(principalKey, p)
}

func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
