package service

import (
	"context"
	"time"

	"bitwise74/share-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TokenCleanup periodically deletes verification tokens that aren't needed
// anymore. It returns when ctx is cancelled
func TokenCleanup(ctx context.Context, t time.Duration, db *gorm.DB) {
	ticker := time.NewTicker(t)
	defer ticker.Stop()

	zap.L().Debug("Token cleanup attached", zap.Duration("tick_every", t))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := cleanupTokens(ctx, db, now)
			if err != nil {
				zap.L().Error("Failed to cleanup verification tokens", zap.Error(err))
				continue
			}

			if n > 0 {
				zap.L().Debug("Cleaned up verification tokens", zap.Int64("deleted", n))
			}
		}
	}
}

// cleanupTokens removes tokens past their cleanup date, or past their expiry
// when no cleanup date was set
func cleanupTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.
		WithContext(ctx).
		Where("cleanup_at < ? OR (cleanup_at IS NULL AND expires_at < ?)", now, now).
		Delete(&model.VerificationToken{})

	return res.RowsAffected, res.Error
}
