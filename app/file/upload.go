package file

import (
	"errors"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/pkg/middleware"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// formFile reads and validates the "file" form field. It writes the error
// response itself and returns nil in that case
func formFile(c *gin.Context, requestID string) *validators.ValidFile {
	fh, err := c.FormFile("file")
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return nil
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return nil
	}

	code, vf, err := validators.FileValidator(fh)
	if err != nil {
		msg := err.Error()
		if code == http.StatusInternalServerError {
			msg = "Internal server error"
			zap.L().Error("Failed to validate upload", zap.Error(err), zap.String("requestID", requestID))
		}

		c.JSON(code, gin.H{
			"error":     msg,
			"requestID": requestID,
		})
		return nil
	}

	return vf
}

func FileUpload(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	vf := formFile(c, requestID)
	if vf == nil {
		return
	}
	defer vf.File.Close()

	f, err := d.Uploader.Do(c.Request.Context(), userID, vf)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSpace):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Not enough storage space left",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "User not found",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to store upload", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusCreated, f)
}
