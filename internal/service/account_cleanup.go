package service

import (
	"context"
	"fmt"
	"time"

	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/storage"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountCleanup periodically deletes accounts that didn't verify their email
// before their expiry, together with their files
func AccountCleanup(ctx context.Context, t time.Duration, db *gorm.DB, store storage.ContentStore) {
	ticker := time.NewTicker(t)
	defer ticker.Stop()

	zap.L().Debug("Account cleanup attached", zap.Duration("tick_every", t))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := cleanupAccounts(ctx, db, store, now)
			if err != nil {
				zap.L().Error("Failed to cleanup accounts", zap.Error(err))
				continue
			}

			zap.L().Debug("Account cleanup finished", zap.Int("deleted", n))
		}
	}
}

func cleanupAccounts(ctx context.Context, db *gorm.DB, store storage.ContentStore, now time.Time) (int, error) {
	var userIDs []string

	err := db.
		WithContext(ctx).
		Model(&model.User{}).
		Where("verified = ? AND expires_at < ?", false, now).
		Pluck("id", &userIDs).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to query users to clean, %w", err)
	}

	if len(userIDs) == 0 {
		return 0, nil
	}

	var keys []string

	err = db.
		WithContext(ctx).
		Model(&model.File{}).
		Where("user_id IN ?", userIDs).
		Pluck("file_key", &keys).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to query files to clean, %w", err)
	}

	// Stored objects go first. If this fails the rows stay and the next tick
	// tries again
	if err := store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete stored files, %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&model.File{}, &model.Stats{}, &model.VerificationToken{}} {
			if err := tx.Where("user_id IN ?", userIDs).Delete(m).Error; err != nil {
				return err
			}
		}

		return tx.Where("id IN ?", userIDs).Delete(&model.User{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete users, %w", err)
	}

	return len(userIDs), nil
}
