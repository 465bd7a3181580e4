package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tokenFromRequest reads the auth_token cookie and falls back to a bearer token
func tokenFromRequest(c *gin.Context) string {
	if t, err := c.Cookie("auth_token"); err == nil && t != "" {
		return t
	}

	if t, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(t)
	}

	return ""
}

func revoked(claims jwt.MapClaims, changedAt *time.Time) bool {
	if changedAt == nil {
		return false
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return true
	}

	return iat.Unix() < changedAt.Unix()
}

// NewJWTMiddleware verifies the auth token and sets userID and role for the
// handlers behind it. Only verified accounts pass. Tokens issued before the
// last password change are rejected
func NewJWTMiddleware(d *gorm.DB) gin.HandlerFunc {
	secret := []byte(viper.GetString("jwt.secret"))
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		tokenStr := tokenFromRequest(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No auth token provided",
				"requestID": requestID,
			})
			return
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			msg := "Authorization token invalid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Authorization token expired. Please log in again"
			}

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     msg,
				"requestID": requestID,
			})

			zap.L().Debug("Rejected auth token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid",
				"requestID": requestID,
			})
			return
		}

		var user model.User
		err = d.
			WithContext(c.Request.Context()).
			Select("id", "verified", "role", "password_changed_at").
			Where("id = ?", userID).
			First(&user).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "User not found",
					"requestID": requestID,
				})
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to check if user exists", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		if !user.Verified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Please verify your account before using the service",
				"requestID": requestID,
			})
			return
		}

		if revoked(claims, user.PasswordChangedAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token revoked. Please log in again",
				"requestID": requestID,
			})
			return
		}

		c.Set("userID", userID)
		c.Set("role", user.Role)
		c.Next()
	}
}
