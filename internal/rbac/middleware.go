package rbac

import (
	"errors"
	"net/http"

	"sipcall-backend/internal/auth"
	"sipcall-backend/internal/users"

	"github.com/gin-gonic/gin"
)

// UserLoader resolves the authenticated user record for capability checks.
// *users.Service satisfies it.
type UserLoader interface {
	Get(ctx *gin.Context) (users.User, error)
}

type serviceLoader struct {
	svc *users.Service
}

func (l serviceLoader) Get(c *gin.Context) (users.User, error) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		return users.User{}, err
	}
	return l.svc.Get(c.Request.Context(), uid)
}

// RequireCapability loads the caller's user record and enforces the named
// capability. Admin users bypass the can_call check; nothing bypasses admin.
func RequireCapability(svc *users.Service, capability string) gin.HandlerFunc {
	return requireCapability(serviceLoader{svc: svc}, capability)
}

func requireCapability(loader UserLoader, capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := loader.Get(c)
		if errors.Is(err, users.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}

		switch capability {
		case CapabilityCall:
			if !u.Capabilities.CanCall && !u.Capabilities.IsAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "calling disabled for this account"})
				return
			}
		case CapabilityAdmin:
			if !u.Capabilities.IsAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
