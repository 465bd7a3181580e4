package file

import (
	"errors"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileReplace swaps the content of a file. Its rule and public link are kept
func FileReplace(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	f, ok := ownedFile(c, d, requestID, userID)
	if !ok {
		return
	}

	vf := formFile(c, requestID)
	if vf == nil {
		return
	}
	defer vf.File.Close()

	if err := d.Uploader.Replace(c.Request.Context(), f, vf); err != nil {
		switch {
		case errors.Is(err, service.ErrNoSpace):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Not enough storage space left",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to replace file content", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusOK, f)
}
