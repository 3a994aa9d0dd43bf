package httpx

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
)

const identityKey = "identity"

type Verifier interface {
	Verify(raw string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller identity on the context.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		id, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(r auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Authorize(CurrentIdentity(c), auth.HasRole(r)); err != nil {
			WriteError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the authenticated caller, or the zero Identity.
func CurrentIdentity(c *gin.Context) auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}
	}
	id, _ := v.(auth.Identity)
	return id
}
