package file

import (
	"errors"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ownedFile loads the file named by the :id param if userID owns it. Files of
// other users are reported as missing
func ownedFile(c *gin.Context, d *internal.Deps, requestID, userID string) (*model.File, bool) {
	fileID := c.Param("id")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file ID provided",
			"requestID": requestID,
		})
		return nil, false
	}

	f, err := d.Files.Owned(c.Request.Context(), fileID, userID)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
			return nil, false
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch file", zap.Error(err), zap.String("requestID", requestID))
		return nil, false
	}

	return f, true
}

func FileFetch(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	f, ok := ownedFile(c, d, requestID, userID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, f)
}
