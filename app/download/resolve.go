package download

import (
	"errors"
	"net/http"
	"strings"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// Resolve tells the caller what a link needs. Links with an EXPIRY rule need
// nothing, so browsers get the file right away unless they ask for JSON
func Resolve(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	link := c.Param("link")

	res, err := d.Engine.Resolve(c.Request.Context(), link)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Invalid link",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrExpired):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Link expired",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to resolve link", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	if res.RuleType != model.RuleExpiry || wantsJSON(c) {
		c.JSON(http.StatusOK, res)
		return
	}

	// The rule may have changed since it was resolved, so go through the gate
	auth, err := d.Engine.Verify(c.Request.Context(), link, "")
	if err != nil {
		switch {
		case errors.Is(err, access.ErrExpired):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Link expired",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrNotFound), errors.Is(err, access.ErrDenied), errors.Is(err, access.ErrCredentialRequired):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Invalid link",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to authorize download", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	stream(c, d, auth, requestID)
}
