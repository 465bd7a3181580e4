package middleware

import (
	"net/http"

	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
)

// RequireRole only lets through requests whose role, set by the JWT middleware,
// equals role
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		if r, _ := c.Get("role"); r != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Insufficient permissions",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}
