// Package middleware contains any custom middleware used in the app
package middleware

import (
	"bitwise74/share-api/pkg/util"

	"github.com/gin-gonic/gin"
)

const requestIDSize = 12

// NewRequestIDMiddleware returns a new middleware function that generates a request ID for
// each incoming request and sets it as requestID
func NewRequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := util.NewID(requestIDSize)
		if err != nil {
			id = "unavailable"
		}

		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
