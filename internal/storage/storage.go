// Package storage keeps the bytes of uploaded files. The rest of the
// application only passes around opaque object keys
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var ErrNotExist = errors.New("object does not exist")

// Object is an open stream of a stored file. Callers must close Body
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

type ContentStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, keys ...string) error
}

// New builds the store selected by storage.type
func New(ctx context.Context) (ContentStore, error) {
	switch t := viper.GetString("storage.type"); t {
	case "s3":
		return NewS3(ctx)
	case "r2":
		return NewR2(ctx)
	case "local":
		return NewLocal(afero.NewOsFs(), viper.GetString("storage.local_path"))
	default:
		return nil, fmt.Errorf("unknown storage type %q", t)
	}
}
