package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader is the header carrying the admin credential.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth returns a middleware that guards admin routes with a shared key.
// A missing header yields 401, a wrong key 403. When no key is configured the
// admin surface is disabled entirely.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "admin interface is not configured",
			})
			return
		}

		provided := c.GetHeader(AdminKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing admin key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid admin key",
			})
			return
		}

		c.Next()
	}
}
