package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitwise74/share-api/app"
	"bitwise74/share-api/config"
	"bitwise74/share-api/db"
	"bitwise74/share-api/internal/service"
	"bitwise74/share-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.MigrateSecrets() {
		if err := migrate(ctx); err != nil {
			zap.L().Fatal("Secret migration failed", zap.Error(err))
		}
		return
	}

	router, d, err := app.NewRouter(ctx)
	if err != nil {
		panic(err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("host.port")),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Server starting", zap.String("addr", srv.Addr))

		var err error
		if viper.GetBool("host.ssl.enabled") {
			err = srv.ListenAndServeTLS(viper.GetString("host.ssl.certificate_path"), viper.GetString("host.ssl.certificate_key_path"))
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Failed to shut down server gracefully", zap.Error(err))
	}

	if d.MailQueue != nil {
		d.MailQueue.Stop()
	}

	zap.L().Sync()
}

func migrate(ctx context.Context) error {
	conn, err := db.New()
	if err != nil {
		return fmt.Errorf("failed to initialize database, %w", err)
	}

	report, err := service.MigrateSecrets(ctx, conn, security.NewArgon(), viper.GetBool("links.hash_passcodes"))
	if err != nil {
		return err
	}

	zap.L().Info("Secret migration finished",
		zap.Int("defaultPasswords", report.DefaultPasswords),
		zap.Int("passcodes", report.Passcodes),
	)
	return nil
}
