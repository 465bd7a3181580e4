// Package download contains the public endpoints that serve shared files to
// anyone holding a link
package download

import (
	"errors"
	"mime"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stream releases the content referenced by auth as an attachment
func stream(c *gin.Context, d *internal.Deps, auth access.Authorization, requestID string) {
	obj, err := d.Store.Open(c.Request.Context(), auth.Content.Key)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File content is no longer available",
				"requestID": requestID,
			})

			zap.L().Error("Stored object missing for shared file", zap.String("fileID", auth.FileID), zap.String("requestID", requestID))
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open stored object", zap.Error(err), zap.String("requestID", requestID))
		return
	}
	defer obj.Body.Close()

	contentType := auth.Content.Format
	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	size := obj.Size
	if size <= 0 {
		size = auth.Content.Size
	}

	name := auth.Content.Name
	if name == "" {
		name = auth.FileID
	}

	c.DataFromReader(http.StatusOK, size, contentType, obj.Body, map[string]string{
		"Content-Disposition":    mime.FormatMediaType("attachment", map[string]string{"filename": name}),
		"Cache-Control":          "no-store",
		"X-Content-Type-Options": "nosniff",
	})
}
