package user

import (
	"errors"
	"net/http"
	"time"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type pendingToken struct {
	Purpose   string
	ExpiresAt time.Time
	Used      bool
}

// Rejects the email change without touching the token
var errChangeRejected = errors.New("email change rejected")

// UserVerify consumes a token sent by mail. Verification tokens mark the
// account as verified so it is no longer subject to cleanup, email change
// tokens swap in the pending address
func UserVerify(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No verification token provided",
			"requestID": requestID,
		})
		return
	}

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No user ID provided",
			"requestID": requestID,
		})
		return
	}

	var record pendingToken

	err := d.DB.
		WithContext(c.Request.Context()).
		Model(&model.VerificationToken{}).
		Where("user_id = ? AND token = ? AND purpose IN ?", userID, token, []string{model.PurposeEmailVerification, model.PurposeEmailChange}).
		Select("purpose", "expires_at", "used").
		First(&record).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Token expired or invalid",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to get verification token record", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if record.Used {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Token was used already",
			"requestID": requestID,
		})
		return
	}

	now := time.Now()
	if record.ExpiresAt.Before(now) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Token expired",
			"requestID": requestID,
		})
		return
	}

	if record.Purpose == model.PurposeEmailChange {
		changeEmail(c, d, requestID, userID, token, now)
		return
	}

	err = d.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := markUsed(tx, userID, token, now); err != nil {
			return err
		}

		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"verified":   true,
				"expires_at": nil,
			}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Failed to validate user",
			"requestID": requestID,
		})

		zap.L().Error("Failed to update user and token in transaction", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "User validated successfully",
		"requestID": requestID,
	})
}

func markUsed(tx *gorm.DB, userID, token string, now time.Time) error {
	return tx.Model(&model.VerificationToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Updates(map[string]any{
			"used":    true,
			"used_at": now,
		}).Error
}

func changeEmail(c *gin.Context, d *internal.Deps, requestID, userID, token string, now time.Time) {
	var (
		status = http.StatusOK
		msg    = "Email updated"
	)

	err := d.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Select("id", "pending_email").Where("id = ?", userID).First(&user).Error; err != nil {
			return err
		}

		if user.PendingEmail == nil || *user.PendingEmail == "" {
			status, msg = http.StatusBadRequest, "No email change pending"
			return errChangeRejected
		}

		taken, err := emailTaken(tx, *user.PendingEmail)
		if err != nil {
			return err
		}

		if taken {
			status, msg = http.StatusConflict, "This email is already in use"
			return errChangeRejected
		}

		if err := markUsed(tx, userID, token, now); err != nil {
			return err
		}

		return tx.Model(&model.User{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"email":         *user.PendingEmail,
				"pending_email": nil,
			}).Error
	})
	if err != nil && !errors.Is(err, errChangeRejected) {
		internalError(c, requestID)
		zap.L().Error("Failed to change email in transaction", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if status != http.StatusOK {
		c.JSON(status, gin.H{
			"error":     msg,
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   msg,
		"requestID": requestID,
	})
}
