// Package repository contains gorm backed lookups used by the access engine
// and the HTTP handlers
package repository

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"

	"gorm.io/gorm"
)

type Files struct {
	DB *gorm.DB
}

func NewFiles(db *gorm.DB) *Files {
	return &Files{DB: db}
}

func (r *Files) ByID(ctx context.Context, id string) (*model.File, error) {
	var f model.File

	err := r.DB.
		WithContext(ctx).
		Where("id = ?", id).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch file, %w", err)
	}

	return &f, nil
}

func (r *Files) ByLink(ctx context.Context, link string) (*model.File, error) {
	var f model.File

	err := r.DB.
		WithContext(ctx).
		Where("public_link = ?", link).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch file by link, %w", err)
	}

	return &f, nil
}

// Owned returns the file only if userID owns it
func (r *Files) Owned(ctx context.Context, id, userID string) (*model.File, error) {
	var f model.File

	err := r.DB.
		WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&f).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch file, %w", err)
	}

	return &f, nil
}

// UpdateRule writes every rule column and the link in one statement. A map is
// used so NULL values are written too
func (r *Files) UpdateRule(ctx context.Context, f *model.File) error {
	res := r.DB.
		WithContext(ctx).
		Model(&model.File{}).
		Where("id = ? AND user_id = ?", f.ID, f.UserID).
		Updates(map[string]any{
			"rule_type":   f.RuleType,
			"passcode":    f.Passcode,
			"expires_at":  f.ExpiresAt,
			"public_link": f.PublicLink,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update file rule, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return access.ErrNotFound
	}

	return nil
}

// ReplaceContent swaps the stored object of a file while keeping its rule and
// public link. Storage usage is adjusted in the same transaction
func (r *Files) ReplaceContent(ctx context.Context, f *model.File, key, name, format string, size int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Model(&model.File{}).
			Where("id = ? AND user_id = ?", f.ID, f.UserID).
			Updates(map[string]any{
				"file_key":      key,
				"original_name": name,
				"format":        format,
				"size":          size,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to replace file content, %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return access.ErrNotFound
		}

		err := tx.
			Model(&model.Stats{}).
			Where("user_id = ?", f.UserID).
			Update("used_storage", gorm.Expr("used_storage + ?", size-f.Size)).
			Error
		if err != nil {
			return fmt.Errorf("failed to update stats, %w", err)
		}

		return nil
	})
}

func (r *Files) Create(ctx context.Context, f *model.File) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(f).Error; err != nil {
			return fmt.Errorf("failed to create file, %w", err)
		}

		err := tx.
			Model(&model.Stats{}).
			Where("user_id = ?", f.UserID).
			Updates(map[string]any{
				"used_storage":   gorm.Expr("used_storage + ?", f.Size),
				"uploaded_files": gorm.Expr("uploaded_files + 1"),
			}).
			Error
		if err != nil {
			return fmt.Errorf("failed to update stats, %w", err)
		}

		return nil
	})
}

func (r *Files) Delete(ctx context.Context, f *model.File) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.
			Where("id = ? AND user_id = ?", f.ID, f.UserID).
			Delete(&model.File{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete file, %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return access.ErrNotFound
		}

		err := tx.
			Model(&model.Stats{}).
			Where("user_id = ?", f.UserID).
			Updates(map[string]any{
				"used_storage":   gorm.Expr("used_storage - ?", f.Size),
				"uploaded_files": gorm.Expr("uploaded_files - 1"),
			}).
			Error
		if err != nil {
			return fmt.Errorf("failed to update stats, %w", err)
		}

		return nil
	})
}

// List returns the newest files of a user
func (r *Files) List(ctx context.Context, userID string, limit, offset int) ([]model.File, error) {
	var files []model.File

	err := r.DB.
		WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&files).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files, %w", err)
	}

	return files, nil
}

// Search matches files of a user by original name
func (r *Files) Search(ctx context.Context, userID, query string, limit int) ([]model.File, error) {
	var files []model.File

	err := r.DB.
		WithContext(ctx).
		Where("user_id = ? AND LOWER(original_name) LIKE LOWER(?) ESCAPE '\\'", userID, "%"+escapeLike(query)+"%").
		Order("created_at desc").
		Limit(limit).
		Find(&files).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to search files, %w", err)
	}

	return files, nil
}
