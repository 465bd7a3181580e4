package service

import (
	"context"
	"fmt"
	"time"

	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationDefaultPasswords = "hash_default_download_passwords"
	migrationPasscodes        = "hash_file_passcodes"

	migrationBatchSize = 200
)

type MigrationReport struct {
	DefaultPasswords int
	Passcodes        int
}

// MigrateSecrets hashes every default download password that is still stored
// as plain text. File passcodes are only hashed when hashPasscodes is set, since
// they are stored as given otherwise. Values that already look hashed are left
// alone so the pass can be run any number of times
func MigrateSecrets(ctx context.Context, db *gorm.DB, h access.Hasher, hashPasscodes bool) (*MigrationReport, error) {
	r := &MigrationReport{}

	var users []model.User
	res := db.
		WithContext(ctx).
		Select("id", "default_download_password").
		Where("default_download_password IS NOT NULL AND default_download_password <> ''").
		FindInBatches(&users, migrationBatchSize, func(tx *gorm.DB, _ int) error {
			for _, u := range users {
				if security.IsHashed(*u.DefaultDownloadPassword) {
					continue
				}

				hash, err := h.Hash(*u.DefaultDownloadPassword)
				if err != nil {
					return fmt.Errorf("failed to hash default download password, %w", err)
				}

				err = db.
					WithContext(ctx).
					Model(&model.User{}).
					Where("id = ? AND default_download_password = ?", u.ID, *u.DefaultDownloadPassword).
					Update("default_download_password", hash).
					Error
				if err != nil {
					return fmt.Errorf("failed to store default download password, %w", err)
				}

				r.DefaultPasswords++
			}

			return nil
		})
	if res.Error != nil {
		return r, res.Error
	}

	if err := recordMigration(ctx, db, migrationDefaultPasswords, r.DefaultPasswords); err != nil {
		return r, err
	}

	zap.L().Info("Default download passwords migrated", zap.Int("hashed", r.DefaultPasswords))

	if !hashPasscodes {
		return r, nil
	}

	var files []model.File
	res = db.
		WithContext(ctx).
		Select("id", "passcode").
		Where("rule_type = ? AND passcode IS NOT NULL AND passcode <> ''", model.RulePasscode).
		FindInBatches(&files, migrationBatchSize, func(tx *gorm.DB, _ int) error {
			for _, f := range files {
				if security.IsHashed(*f.Passcode) {
					continue
				}

				hash, err := h.Hash(*f.Passcode)
				if err != nil {
					return fmt.Errorf("failed to hash passcode, %w", err)
				}

				// Guarded by the old value so a rule set in the meantime isn't
				// overwritten
				err = db.
					WithContext(ctx).
					Model(&model.File{}).
					Where("id = ? AND passcode = ?", f.ID, *f.Passcode).
					Update("passcode", hash).
					Error
				if err != nil {
					return fmt.Errorf("failed to store passcode, %w", err)
				}

				r.Passcodes++
			}

			return nil
		})
	if res.Error != nil {
		return r, res.Error
	}

	if err := recordMigration(ctx, db, migrationPasscodes, r.Passcodes); err != nil {
		return r, err
	}

	zap.L().Info("File passcodes migrated", zap.Int("hashed", r.Passcodes))
	return r, nil
}

func recordMigration(ctx context.Context, db *gorm.DB, name string, rewritten int) error {
	err := db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"applied_at": time.Now(),
				"rewritten":  rewritten,
			}),
		}).
		Create(&model.Migration{Name: name, Rewritten: rewritten}).
		Error
	if err != nil {
		return fmt.Errorf("failed to record migration %s, %w", name, err)
	}

	return nil
}
