package user

import (
	"net/http"

	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createUserBody struct {
	Email                   string     `json:"email"`
	Password                string     `json:"password"`
	DefaultDownloadPassword string     `json:"defaultDownloadPassword"`
	Role                    model.Role `json:"role"`
}

// UserCreate lets an admin create an account with any role. The account still
// has to be verified through the mailed link
func UserCreate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data createUserBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	switch data.Role {
	case "":
		data.Role = model.RoleUser
	case model.RoleUser, model.RoleAdmin:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid role",
			"requestID": requestID,
		})
		return
	}

	userID, ok := createAccount(c, d, requestID, &newAccount{
		Email:                   data.Email,
		Password:                data.Password,
		DefaultDownloadPassword: data.DefaultDownloadPassword,
		Role:                    data.Role,
	})
	if !ok {
		return
	}

	zap.L().Info("Admin created user",
		zap.String("adminID", c.MustGet("userID").(string)),
		zap.String("userID", userID),
		zap.String("role", string(data.Role)),
		zap.String("requestID", requestID),
	)

	c.JSON(http.StatusCreated, gin.H{
		"userID": userID,
		"role":   data.Role,
	})
}
