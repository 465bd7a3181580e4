package user

import (
	"errors"
	"net/http"
	"time"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resetCodeDigits = 6
	resetCodeTTL    = time.Minute * 5
)

// UserForgotPassword mails a one-time code that UserResetPassword accepts in
// place of the current password. Only a hash of the code is stored and a new
// request replaces the previous code
func UserForgotPassword(c *gin.Context, d *internal.Deps) {
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
		Select("id", "email", "last_mail_sent_at").
		Where("email = ?", data.Email).
		First(&user).
		Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		internalError(c, requestID)
		zap.L().Error("Failed to look up user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err != nil || recentlyMailed(&user) {
		c.JSON(http.StatusOK, gin.H{
			"message":   mailSentMessage,
			"requestID": requestID,
		})
		return
	}

	code, err := util.GenerateOTP(resetCodeDigits)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to generate password reset code", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	hash, err := d.Argon.Hash(code)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to hash password reset code", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	now := time.Now()

	err = d.DB.
		WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"password_reset_otp":        hash,
			"password_reset_expires_at": now.Add(resetCodeTTL),
			"password_reset_attempts":   0,
			"last_mail_sent_at":         now,
		}).
		Error
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to store password reset code", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	enqueueMail(d, user.ID, requestID, service.PasswordResetMessage(d.MailFrom, user.Email, code, resetCodeTTL))

	c.JSON(http.StatusOK, gin.H{
		"message":   mailSentMessage,
		"requestID": requestID,
	})
}
