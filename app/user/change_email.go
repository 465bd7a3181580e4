package user

import (
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type changeEmailBody struct {
	NewEmail string `json:"newEmail"`
}

// UserChangeEmail stores the new address as pending and mails a confirmation
// link to it. The account keeps its current address until the link is opened
func UserChangeEmail(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	ctx := c.Request.Context()

	var data changeEmailBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	if err := validators.EmailValidator(data.NewEmail); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	taken, err := emailTaken(d.DB.WithContext(ctx), data.NewEmail)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to check if email is in use", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if taken {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "This email is already in use",
			"requestID": requestID,
		})
		return
	}

	token, err := verificationToken(userID, model.PurposeEmailChange)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to generate verification token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Only the latest request can be confirmed
		if err := tx.
			Where("user_id = ? AND purpose = ? AND used = ?", userID, model.PurposeEmailChange, false).
			Delete(&model.VerificationToken{}).
			Error; err != nil {
			return err
		}

		if err := tx.Create(token).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Update("pending_email", data.NewEmail).
			Error
	})
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to store pending email", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	enqueueMail(d, userID, requestID, service.EmailChangeMessage(d.MailFrom, data.NewEmail, token))

	c.JSON(http.StatusOK, gin.H{
		"message":   "Check your new inbox to confirm the change",
		"requestID": requestID,
	})
}
