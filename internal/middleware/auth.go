package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio/internal/pkg/jwt"
	"portfolio/internal/pkg/response"
)

// AdminAuth requires a bearer token from the identity provider. A nil
// verifier disables the check.
func AdminAuth(verifier *jwt.Verifier, log *slog.Logger) gin.HandlerFunc {
	if verifier == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing Authorization header")
			return
		}

		scheme, tokenStr, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := verifier.Verify(strings.TrimSpace(tokenStr))
		if err != nil {
			log.Warn("rejected token", "path", c.Request.URL.Path, "client_ip", c.ClientIP())
			response.Abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
