package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ops-management-api/internal/config"
)

// Middleware resolves the caller's principal from the Authorization header and
// attaches it to the request context. It never rejects: an absent or invalid
// token yields an anonymous principal and the authorization gate decides
// whether the request may proceed.
func Middleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := Anonymous()

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := ValidateJWT(parts[1], cfg); err == nil {
					principal = claims.Principal()
				}
			}
		}

		c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
