// Package app builds the HTTP router and everything its handlers depend on
package app

import (
	"context"
	"fmt"
	"time"

	"bitwise74/share-api/app/download"
	"bitwise74/share-api/app/file"
	"bitwise74/share-api/app/root"
	"bitwise74/share-api/app/user"
	"bitwise74/share-api/db"
	"bitwise74/share-api/internal"
	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/repository"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/internal/storage"
	"bitwise74/share-api/pkg/middleware"
	"bitwise74/share-api/pkg/security"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRouter connects to the database and the content store, starts the
// background workers and registers every route. Workers stop when ctx is
// cancelled, except the mail queue which has to be stopped through Deps
func NewRouter(ctx context.Context) (*gin.Engine, *internal.Deps, error) {
	conn, err := db.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	contentStore, err := storage.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize content store, %w", err)
	}

	d := &internal.Deps{
		DB:    conn,
		Argon: security.NewArgon(),
		Store: contentStore,
		Files: repository.NewFiles(conn),
		Users: repository.NewUsers(conn),
	}

	d.Uploader = service.NewUploader(d.Store, d.Files, d.Users)

	d.Engine = access.New(d.Files, d.Users, security.NewCredentialVerifier(d.Argon), viper.GetDuration("links.max_validity"))
	if viper.GetBool("links.hash_passcodes") {
		d.Engine.Hasher = d.Argon
	}

	if viper.GetString("mail.host") != "" {
		mailer := service.NewSMTPMailer()

		d.MailFrom = mailer.From
		d.MailQueue = service.NewMailQueue(mailer, conn, viper.GetInt("mail.queue_size"), viper.GetInt("mail.workers"))
		d.MailQueue.StartWorkerPool()
	} else {
		zap.L().Warn("No mail.host configured, verification mails won't be sent")
	}

	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors"),
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 8 << 20

	rateLimit := viper.GetInt("security.rate_limit")
	maxUploadSize := viper.GetInt64("upload.max_size")

	jwt := middleware.NewJWTMiddleware(conn)
	turnstile := middleware.NewTurnstileMiddleware()
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
		CleanupInterval:   time.Minute,
	})
	go rateLimiter.Run(ctx)

	m := router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", func(c *gin.Context) { root.Heartbeat(c, d) })

		// GET /api/validate		-> Validates a JWT token
		m.GET("/validate", jwt, root.Validate)
	}

	u := m.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// GET /api/users		-> Returns the profile and stats of a user
		u.GET("", jwt, func(c *gin.Context) { user.UserFetch(c, d) })

		// POST /api/users 		-> Registers a new user
		u.POST("", func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		u.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })

		// POST /api/users/verify	-> Verifies a new user
		u.POST("/verify", func(c *gin.Context) { user.UserVerify(c, d) })

		// PUT /api/users/default-password -> Sets or clears the default download password
		u.PUT("/default-password", jwt, func(c *gin.Context) { user.UserSetDefaultPassword(c, d) })

		// POST /api/users/resend-verification -> Mails a new verification link
		u.POST("/resend-verification", rateLimiter.Handler(), func(c *gin.Context) { user.UserResendVerification(c, d) })

		// POST /api/users/forgot-password -> Mails a password reset code
		u.POST("/forgot-password", rateLimiter.Handler(), func(c *gin.Context) { user.UserForgotPassword(c, d) })

		// POST /api/users/reset-password -> Sets a new password using the mailed code
		u.POST("/reset-password", rateLimiter.Handler(), func(c *gin.Context) { user.UserResetPassword(c, d) })

		// PUT /api/users/email 	-> Starts an email change, confirmed through /verify
		u.PUT("/email", jwt, func(c *gin.Context) { user.UserChangeEmail(c, d) })

		// POST /api/users/admin 	-> Creates an account with a chosen role
		u.POST("/admin", jwt, middleware.RequireRole(model.RoleAdmin), func(c *gin.Context) { user.UserCreate(c, d) })
	}

	responses := newUserCache()

	ff := m.Group("/files", jwt, responses.InvalidateOnWrite())
	{
		// GET /api/files 		-> Returns a user's files in pages
		ff.GET("", func(c *gin.Context) { file.FileFetchBulk(c, d) })

		// GET /api/files/search	-> Searches the user's files by name
		ff.GET("/search", responses.For(time.Second*15), func(c *gin.Context) { file.FileSearch(c, d) })

		// GET /api/files/:id		-> Returns a file by it's ID if the user owns it
		ff.GET("/:id", func(c *gin.Context) { file.FileFetch(c, d) })

		// POST /api/files         	-> Uploads a new file
		ff.POST("", middleware.BodySizeLimiter(maxUploadSize), func(c *gin.Context) { file.FileUpload(c, d) })

		// POST /api/files/:id/replace	-> Replaces the content of a file, keeping its rule
		ff.POST("/:id/replace", middleware.BodySizeLimiter(maxUploadSize), func(c *gin.Context) { file.FileReplace(c, d) })

		// POST /api/files/:id/rule	-> Sets the access rule and issues a new public link
		ff.POST("/:id/rule", middleware.BodySizeLimiter(1<<20), func(c *gin.Context) { file.FileRule(c, d) })

		// DELETE /api/files/:id	-> Deletes a file owned by a user
		ff.DELETE("/:id", func(c *gin.Context) { file.FileDelete(c, d) })
	}

	dl := router.Group("/download", rateLimiter.Handler())
	{
		// GET /download/:link		-> Describes a link, or serves the file for EXPIRY links
		dl.GET("/:link", func(c *gin.Context) { download.Resolve(c, d) })

		// POST /download/:link/verify	-> Checks the passcode and serves the file
		dl.POST("/:link/verify", turnstile, middleware.BodySizeLimiter(1<<20), func(c *gin.Context) { download.Verify(c, d) })
	}

	// Check for useless tokens every day because they expire rarely
	go service.TokenCleanup(ctx, time.Hour*24, conn)

	// Check for expired accounts rarely because they have a week to verify
	go service.AccountCleanup(ctx, time.Hour*24*7, conn, contentStore)

	return router, d, nil
}
