package user

import (
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserFetch returns the caller's profile, storage stats and their latest
// files. Password hashes never leave the server
func UserFetch(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	ctx := c.Request.Context()

	var user model.User
	err := d.DB.
		WithContext(ctx).
		Select("id", "email", "role", "pending_email", "verified", "created_at", "default_download_password").
		Where("id = ?", userID).
		First(&user).
		Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	files, err := d.Files.List(ctx, userID, 10, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch initial user data", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	stats, err := d.Users.Stats(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch user stats", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":                 user.ID,
			"email":              user.Email,
			"pendingEmail":       user.PendingEmail,
			"role":               user.Role,
			"verified":           user.Verified,
			"createdAt":          user.CreatedAt,
			"hasDefaultPassword": user.DefaultDownloadPassword != nil && *user.DefaultDownloadPassword != "",
		},
		"files": files,
		"stats": stats,
	})
}
