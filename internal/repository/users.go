package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitwise74/share-api/internal/access"
	"bitwise74/share-api/internal/model"

	"gorm.io/gorm"
)

type Users struct {
	DB *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{DB: db}
}

// DefaultSecret implements access.AccountStore
func (r *Users) DefaultSecret(ctx context.Context, userID string) (*string, error) {
	var u model.User

	err := r.DB.
		WithContext(ctx).
		Select("id", "default_download_password").
		Where("id = ?", userID).
		First(&u).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch default download password, %w", err)
	}

	return u.DefaultDownloadPassword, nil
}

// SetDefaultSecret stores a hashed default download password. nil clears it
func (r *Users) SetDefaultSecret(ctx context.Context, userID string, hash *string) error {
	res := r.DB.
		WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("default_download_password", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update default download password, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return access.ErrNotFound
	}

	return nil
}

func (r *Users) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	var s model.Stats

	err := r.DB.
		WithContext(ctx).
		Where("user_id = ?", userID).
		First(&s).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch stats, %w", err)
	}

	return &s, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
