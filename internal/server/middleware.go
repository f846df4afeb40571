package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth protege la API admin. Acepta la key en X-Admin-Key o en
// Authorization: Bearer <key>. Sin key configurada la API queda cerrada.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Admin-Key")
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimSpace(auth[len("Bearer "):])
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing admin API key",
				"hint":  "Add X-Admin-Key header or Authorization: Bearer <key>",
			})
			return
		}

		if adminKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid admin API key",
			})
			return
		}

		c.Next()
	}
}
