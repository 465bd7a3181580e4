package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate answers 200 once the JWT middleware accepted the token
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"userID": c.GetString("userID"),
	})
}
