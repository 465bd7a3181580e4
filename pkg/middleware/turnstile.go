package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var turnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

type turnstileResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// NewTurnstileMiddleware checks the TurnstileToken header with Cloudflare. It
// does nothing when cloudflare.turnstile.enabled is off
func NewTurnstileMiddleware() gin.HandlerFunc {
	enabled := viper.GetBool("cloudflare.turnstile.enabled")
	secret := viper.GetString("cloudflare.turnstile.secret_token")
	client := &http.Client{Timeout: 10 * time.Second}

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		requestID := c.GetString("requestID")

		token := c.GetHeader("TurnstileToken")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "Missing or invalid turnstile token",
				"requestID": requestID,
			})
			return
		}

		ok, err := verifyTurnstile(c.Request.Context(), client, secret, token, c.ClientIP())
		if err != nil {
			zap.L().Error("Failed to verify turnstile token", zap.Error(err), zap.String("requestID", requestID))
		}

		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Unauthorized",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}

func verifyTurnstile(ctx context.Context, client *http.Client, secret, token, ip string) (bool, error) {
	form := url.Values{
		"secret":   {secret},
		"response": {token},
		"remoteip": {ip},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, turnstileVerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var res turnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return false, err
	}

	return res.Success, nil
}
