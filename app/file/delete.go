package file

import (
	"errors"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileDelete removes a file record together with its stored content. Its
// public link stops resolving right away
func FileDelete(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	f, ok := ownedFile(c, d, requestID, userID)
	if !ok {
		return
	}

	if err := d.Uploader.Delete(c.Request.Context(), f); err != nil {
		if errors.Is(err, access.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete file", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File deleted",
	})
}
