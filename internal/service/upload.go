package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/repository"
	"bitwise74/share-api/internal/storage"
	"bitwise74/share-api/pkg/util"
	"bitwise74/share-api/pkg/validators"

	"go.uber.org/zap"
)

var ErrNoSpace = errors.New("not enough space")

const (
	fileIDSize = 12
	keySize    = 24
	putTimeout = 5 * time.Minute
)

// Uploader moves validated uploads into the content store and keeps the
// database and storage usage in sync with it
type Uploader struct {
	Store storage.ContentStore
	Files *repository.Files
	Users *repository.Users
}

func NewUploader(s storage.ContentStore, f *repository.Files, u *repository.Users) *Uploader {
	return &Uploader{
		Store: s,
		Files: f,
		Users: u,
	}
}

func objectKey(userID string) (string, error) {
	id, err := util.NewID(keySize)
	if err != nil {
		return "", fmt.Errorf("failed to generate object key, %w", err)
	}
	return userID + "/" + id, nil
}

func (u *Uploader) checkQuota(ctx context.Context, userID string, delta int64) error {
	stats, err := u.Users.Stats(ctx, userID)
	if err != nil {
		return err
	}

	if !stats.Fits(delta) {
		return ErrNoSpace
	}

	return nil
}

func (u *Uploader) put(ctx context.Context, key string, vf *validators.ValidFile) error {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	return u.Store.Put(ctx, key, vf.File, vf.Size, vf.Mime)
}

// Do stores a new file for userID. The file starts without a rule and without
// a public link
func (u *Uploader) Do(ctx context.Context, userID string, vf *validators.ValidFile) (*model.File, error) {
	if err := u.checkQuota(ctx, userID, vf.Size); err != nil {
		return nil, err
	}

	id, err := util.NewID(fileIDSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate file ID, %w", err)
	}

	key, err := objectKey(userID)
	if err != nil {
		return nil, err
	}

	if err := u.put(ctx, key, vf); err != nil {
		return nil, err
	}

	f := &model.File{
		ID:           id,
		UserID:       userID,
		FileKey:      key,
		OriginalName: vf.Name,
		Format:       vf.Mime,
		Size:         vf.Size,
	}

	if err := u.Files.Create(ctx, f); err != nil {
		u.discard(key)
		return nil, err
	}

	return f, nil
}

// Replace swaps the content of f. The rule and the public link stay the same so
// links that were already shared keep working
func (u *Uploader) Replace(ctx context.Context, f *model.File, vf *validators.ValidFile) error {
	if err := u.checkQuota(ctx, f.UserID, vf.Size-f.Size); err != nil {
		return err
	}

	key, err := objectKey(f.UserID)
	if err != nil {
		return err
	}

	if err := u.put(ctx, key, vf); err != nil {
		return err
	}

	if err := u.Files.ReplaceContent(ctx, f, key, vf.Name, vf.Mime, vf.Size); err != nil {
		u.discard(key)
		return err
	}

	u.discard(f.FileKey)

	f.FileKey = key
	f.OriginalName = vf.Name
	f.Format = vf.Mime
	f.Size = vf.Size
	return nil
}

// Delete removes the record first so the file stops being served even if the
// stored object can't be removed
func (u *Uploader) Delete(ctx context.Context, f *model.File) error {
	if err := u.Files.Delete(ctx, f); err != nil {
		return err
	}

	u.discard(f.FileKey)
	return nil
}

// discard removes an object that is no longer referenced. Failures only leave
// an orphaned object behind
func (u *Uploader) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := u.Store.Delete(ctx, key); err != nil {
		zap.L().Warn("Failed to delete stored object", zap.Error(err))
	}
}
