package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/noticeboardhq/noticeboard/internal/models"
)

// ctxIdentityKey is the gin context key carrying the authenticated identity.
const ctxIdentityKey = "authIdentity"

// Identity is the authenticated caller, carried explicitly through the
// request context instead of being read from ambient state.
type Identity struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// SetIdentity attaches the authenticated identity to the request context.
func SetIdentity(c *gin.Context, identity Identity) {
	c.Set(ctxIdentityKey, identity)
}

// CurrentIdentity returns the authenticated identity, if any.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ctxIdentityKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}
