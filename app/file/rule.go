package file

import (
	"errors"
	"net/http"
	"strings"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ruleBody struct {
	RuleType string `json:"ruleType"`
	Passcode string `json:"passcode"`
	Expiry   string `json:"expiry"`
}

// publicURL joins links.base_url, or the address the request came in on, with
// the download path of link
func publicURL(c *gin.Context, link string) string {
	base := strings.TrimRight(viper.GetString("links.base_url"), "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}

	return base + "/download/" + link
}

// FileRule replaces the access rule of a file and returns the new public link
func FileRule(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data ruleBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	ruleType := model.RuleType(data.RuleType)
	if ruleType == model.RulePasscode && data.Passcode != "" {
		if err := validators.PasscodeValidator(data.Passcode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     err.Error(),
				"requestID": requestID,
			})
			return
		}
	}

	link, err := d.Engine.SetRule(c.Request.Context(), c.Param("id"), userID, ruleType, access.Payload{
		Passcode: data.Passcode,
		Expiry:   data.Expiry,
	})
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "File not found",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "You don't own this file",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrHashedPasscode):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Passcode can't be a password hash",
				"requestID": requestID,
			})
		case errors.Is(err, access.ErrInvalidRule):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     invalidRuleMessage(ruleType),
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to set access rule", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Rule set",
		"publicUrl":  publicURL(c, link),
		"publicLink": link,
	})
}

func invalidRuleMessage(t model.RuleType) string {
	switch t {
	case model.RulePasscode:
		return "Passcode is required"
	case model.RuleExpiry:
		return "Invalid expiry date"
	}

	return "Invalid rule type"
}
