package user

import (
	"errors"
	"net/http"
	"time"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// A code is burned after this many wrong guesses
const maxResetAttempts = 5

type resetPasswordBody struct {
	Email           string `json:"email"`
	OTP             string `json:"otp"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func clearResetCode() map[string]any {
	return map[string]any{
		"password_reset_otp":        nil,
		"password_reset_expires_at": nil,
		"password_reset_attempts":   0,
	}
}

// UserResetPassword sets a new password using the code sent by
// UserForgotPassword. Auth tokens issued before the reset stop working
func UserResetPassword(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	ctx := c.Request.Context()

	var data resetPasswordBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	if data.Email == "" || data.OTP == "" || data.NewPassword == "" || data.ConfirmPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "email, otp, newPassword and confirmPassword are required",
			"requestID": requestID,
		})
		return
	}

	if data.NewPassword != data.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Passwords do not match",
			"requestID": requestID,
		})
		return
	}

	if err := validators.PasswordValidator(data.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}

	invalidCode := func() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid or expired code",
			"requestID": requestID,
		})
	}

	var user model.User
	err := d.DB.
		WithContext(ctx).
		Select("id", "password_reset_otp", "password_reset_expires_at", "password_reset_attempts").
		Where("email = ?", data.Email).
		First(&user).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			invalidCode()
			return
		}

		internalError(c, requestID)
		zap.L().Error("Failed to look up user", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	now := time.Now()
	if user.PasswordResetOTP == nil || user.PasswordResetExpiresAt == nil || !now.Before(*user.PasswordResetExpiresAt) {
		invalidCode()
		return
	}

	ok, err := d.Argon.Verify(data.OTP, *user.PasswordResetOTP)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to verify password reset code", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if !ok {
		update := map[string]any{
			"password_reset_attempts": gorm.Expr("password_reset_attempts + 1"),
		}
		if user.PasswordResetAttempts+1 >= maxResetAttempts {
			update = clearResetCode()
		}

		if err := d.DB.WithContext(ctx).
			Model(&model.User{}).
			Where("id = ?", user.ID).
			Updates(update).
			Error; err != nil {
			zap.L().Error("Failed to count password reset attempt", zap.Error(err), zap.String("requestID", requestID))
		}

		invalidCode()
		return
	}

	hash, err := d.Argon.Hash(data.NewPassword)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to hash password", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	update := clearResetCode()
	update["password_hash"] = hash
	update["password_changed_at"] = now

	// The code check guards against a concurrent reset with the same code
	res := d.DB.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND password_reset_otp = ?", user.ID, *user.PasswordResetOTP).
		Updates(update)
	if res.Error != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to update password", zap.Error(res.Error), zap.String("requestID", requestID))
		return
	}

	if res.RowsAffected == 0 {
		invalidCode()
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Password updated",
		"requestID": requestID,
	})
}
