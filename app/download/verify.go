package download

import (
	"errors"
	"io"
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type verifyBody struct {
	Passcode string `json:"passcode"`
}

// Verify checks the presented passcode and streams the file when it matches.
// Unknown links and wrong passcodes get the same response
func Verify(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data verifyBody
	if err := c.ShouldBindJSON(&data); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	auth, err := d.Engine.Verify(c.Request.Context(), c.Param("link"), data.Passcode)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound), errors.Is(err, access.ErrDenied):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Invalid link or passcode",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrExpired):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Link expired",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrCredentialRequired):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Passcode required",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to verify download credential", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	zap.L().Debug("Download authorized", zap.String("fileID", auth.FileID), zap.String("requestID", requestID))

	stream(c, d, auth, requestID)
}
