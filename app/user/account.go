package user

import (
	"net/http"
	"strings"
	"time"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/pkg/security"
	"bitwise74/share-api/pkg/util"
	"bitwise74/share-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Accounts can ask for at most one mail per cooldown
const mailCooldown = time.Minute

type newAccount struct {
	Email                   string
	Password                string
	DefaultDownloadPassword string
	Role                    model.Role
}

func internalError(c *gin.Context, requestID string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "Internal server error",
		"requestID": requestID,
	})
}

// emailTaken reports whether any account uses email as its address
func emailTaken(db *gorm.DB, email string) (bool, error) {
	var found int64

	err := db.Model(&model.User{}).
		Where("email = ?", email).
		Count(&found).
		Error

	return found > 0, err
}

// adminEmail reports whether email is listed in users.admins. Entries may be
// comma separated
func adminEmail(email string) bool {
	for _, entry := range viper.GetStringSlice("users.admins") {
		for _, admin := range strings.Split(entry, ",") {
			if strings.EqualFold(strings.TrimSpace(admin), email) {
				return true
			}
		}
	}

	return false
}

func recentlyMailed(u *model.User) bool {
	return u.LastMailSentAt != nil && time.Since(*u.LastMailSentAt) < mailCooldown
}

// enqueueMail hands m to the mail queue. Delivery problems never fail the
// request that caused them
func enqueueMail(d *internal.Deps, userID, requestID string, m *gomail.Message) {
	if d.MailQueue == nil {
		return
	}

	if err := d.MailQueue.Enqueue(&service.MailJob{UserID: userID, Message: m}); err != nil {
		zap.L().Warn("Failed to queue mail", zap.Error(err), zap.String("userID", userID), zap.String("requestID", requestID))
	}
}

// verificationToken makes a 30 minute token that is cleaned up after 60 days
func verificationToken(userID, purpose string) (*model.VerificationToken, error) {
	now := time.Now()
	expireAt := now.Add(time.Minute * 30)
	cleanAt := now.Add(time.Hour * 24 * 60)

	return security.MakeVerificationToken(&security.VerificationTokenOpts{
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: &expireAt,
		CleanupAt: &cleanAt,
	})
}

// createAccount validates a and stores a new unverified account together with
// its verification token, then queues the verification mail. When it returns
// false the response was already written
func createAccount(c *gin.Context, d *internal.Deps, requestID string, a *newAccount) (string, bool) {
	if err := validators.EmailValidator(a.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return "", false
	}

	if err := validators.PasswordValidator(a.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return "", false
	}

	if a.DefaultDownloadPassword != "" {
		if err := validators.PasswordValidator(a.DefaultDownloadPassword); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Default download password: " + err.Error(),
				"requestID": requestID,
			})
			return "", false
		}
	}

	taken, err := emailTaken(d.DB.WithContext(c.Request.Context()), a.Email)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to check if user is registered", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}

	if taken {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "This email is already registered. Please login or use a different email",
			"requestID": requestID,
		})
		return "", false
	}

	hash, err := d.Argon.Hash(a.Password)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to hash password", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}

	var defaultSecret *string
	if a.DefaultDownloadPassword != "" {
		h, err := d.Argon.Hash(a.DefaultDownloadPassword)
		if err != nil {
			internalError(c, requestID)
			zap.L().Error("Failed to hash default download password", zap.Error(err), zap.String("requestID", requestID))
			return "", false
		}

		defaultSecret = &h
	}

	userID, err := util.NewID(16)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to generate user ID", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}

	verifToken, err := verificationToken(userID, model.PurposeEmailVerification)
	if err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to generate verification token", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}

	// Unverified accounts are removed after a week
	expiry := time.Now().Add(time.Hour * 24 * 7)

	role := a.Role
	if role == "" {
		role = model.RoleUser
	}

	if err := d.DB.WithContext(c.Request.Context()).Create(&model.User{
		ID:                      userID,
		Email:                   a.Email,
		Role:                    role,
		ExpiresAt:               &expiry,
		PasswordHash:            hash,
		DefaultDownloadPassword: defaultSecret,
		Stats: model.Stats{
			UserID:     userID,
			MaxStorage: viper.GetInt64("storage.max_usage"),
		},
		VerificationTokens: []model.VerificationToken{
			*verifToken,
		},
	}).Error; err != nil {
		internalError(c, requestID)
		zap.L().Error("Failed to create user", zap.Error(err), zap.String("requestID", requestID))
		return "", false
	}

	enqueueMail(d, userID, requestID, service.VerificationMessage(d.MailFrom, a.Email, verifToken))

	return userID, true
}
