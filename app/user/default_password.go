package user

import (
	"errors"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type defaultPasswordBody struct {
	Password string `json:"password"`
}

// UserSetDefaultPassword sets the secret used by every file of the caller that
// carries the DEFAULT rule. An empty password removes it, which makes those
// links unusable until a new one is set
func UserSetDefaultPassword(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data defaultPasswordBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	var secret *string
	if data.Password != "" {
		if err := validators.PasswordValidator(data.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
			return
		}

		hash, err := d.Argon.Hash(data.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to hash default download password", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		secret = &hash
	}

	if err := d.Users.SetDefaultSecret(c.Request.Context(), userID, secret); err != nil {
		if errors.Is(err, access.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "User not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update default download password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	msg := "Default download password updated"
	if secret == nil {
		msg = "Default download password removed"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}
