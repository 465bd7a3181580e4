package user

import (
	"errors"
	"net/http"
	"time"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type emailBody struct {
	Email string `json:"email"`
}

// Returned by the public mail endpoints whether or not the address exists
const mailSentMessage = "If the address belongs to an account, a mail is on its way"

// UserResendVerification replaces the pending verification tokens of an
// unverified account and mails a fresh link
func UserResendVerification(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	ctx := c.Request.Context()

	var data emailBody
	if err := c.ShouldBindJSON(&data); err != nil || data.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Email field can't be empty",
			"requestID": requestID,
		})
		return
	}

	var user model.User
	err := d.DB.
		WithContext(ctx).
		Select("id", "email", "verified", "last_mail_sent_at").
		Where("email = ?", data.Email).
		First(&user).
		Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		internalError(c, requestID)
		zap.L().Error("Failed to look up user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err != nil || user.Verified || recentlyMailed(&user) {
		c.JSON(http.StatusOK, gin.H{
			"message":   mailSentMessage,
			"requestID": requestID,
		})
		return
	}

	token, err := verificationToken(user.ID, model.PurposeEmailVerification)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to generate verification token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("user_id = ? AND purpose = ? AND used = ?", user.ID, model.PurposeEmailVerification, false).
			Delete(&model.VerificationToken{}).
			Error; err != nil {
			return err
		}

		if err := tx.Create(token).Error; err != nil {
			return err
		}

		return tx.Model(&model.User{}).
			Where("id = ?", user.ID).
			Update("last_mail_sent_at", time.Now()).
			Error
	})
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to replace verification token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	enqueueMail(d, user.ID, requestID, service.VerificationMessage(d.MailFrom, user.Email, token))

	c.JSON(http.StatusOK, gin.H{
		"message":   mailSentMessage,
		"requestID": requestID,
	})
}
