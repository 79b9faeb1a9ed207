package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/enrollhub/enrollment-service/pkg/errors"
	"github.com/enrollhub/enrollment-service/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated username.
const ContextUserKey = "currentUser"

const basicRealm = `Basic realm="enrollments"`

// Authenticator verifies Basic credentials and returns the username.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// BasicAuth protects routes with HTTP Basic credentials.
func BasicAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", basicRealm)
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing basic credentials"))
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			c.Header("WWW-Authenticate", basicRealm)
			response.Error(c, err)
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the username set by BasicAuth.
func CurrentUser(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return "", false
	}
	user, ok := v.(string)
	return user, ok && user != ""
}
