// Package user contains the account endpoints
package user

import (
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerBody struct {
	Email                   string `json:"email"`
	Password                string `json:"password"`
	DefaultDownloadPassword string `json:"defaultDownloadPassword"`
}

// UserRegister creates an unverified account. Addresses listed in users.admins
// get the ADMIN role
func UserRegister(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data registerBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	role := model.RoleUser
	if adminEmail(data.Email) {
		role = model.RoleAdmin
	}

	userID, ok := createAccount(c, d, requestID, &newAccount{
		Email:                   data.Email,
		Password:                data.Password,
		DefaultDownloadPassword: data.DefaultDownloadPassword,
		Role:                    role,
	})
	if !ok {
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userID": userID,
	})
}
