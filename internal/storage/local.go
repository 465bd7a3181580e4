package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Disk stores objects as files below a root directory
type Disk struct {
	Fs afero.Fs
}

func NewLocal(base afero.Fs, root string) (*Disk, error) {
	if err := base.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory, %w", err)
	}

	return &Disk{Fs: afero.NewBasePathFs(base, root)}, nil
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)
	if k == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}

func (d *Disk) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := d.Fs.MkdirAll(path.Dir(k), 0o750); err != nil {
		return fmt.Errorf("failed to create object directory, %w", err)
	}

	tmp := k + ".part"
	f, err := d.Fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to create object, %w", err)
	}

	_, err = io.Copy(f, readerWithContext(ctx, r))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.Fs.Remove(tmp)
		return fmt.Errorf("failed to write object, %w", err)
	}

	if err := d.Fs.Rename(tmp, k); err != nil {
		d.Fs.Remove(tmp)
		return fmt.Errorf("failed to move object into place, %w", err)
	}

	return nil
}

func (d *Disk) Open(_ context.Context, key string) (*Object, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := d.Fs.Open(k)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to open object, %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat object, %w", err)
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to detect content type, %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind object, %w", err)
	}

	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mime.String(),
	}, nil
}

func (d *Disk) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		k, err := cleanKey(key)
		if err != nil {
			return err
		}

		if err := d.Fs.Remove(k); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete object, %w", err)
		}
	}

	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
