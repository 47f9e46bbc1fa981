package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/response"
)

// Auth enforces JWT authentication using the supplied JWT service and attaches
// the caller's identity to the request context.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		identity, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		iauth.SetIdentity(c, identity)
		c.Next()
	}
}

// RequireAdmin gates the admin surface. The body matches the dashboard's
// expected contract: a bare {"error": "Access denied"} with status 403,
// identical whether the caller is unauthenticated or merely not an admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := iauth.CurrentIdentity(c)
		if !ok || !identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
		c.Next()
	}
}
