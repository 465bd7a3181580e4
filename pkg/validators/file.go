package validators

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrFileTypeUnsupported = errors.New("unsupported file type")
	ErrNoFile              = errors.New("no file provided")
	ErrEmptyFile           = errors.New("file is empty")
)

const maxFileNameSize = 255

// ValidFile is an opened upload that passed every check. The reader is
// rewound to the start
type ValidFile struct {
	File multipart.File
	Name string
	Size int64
	Mime string
}

// FileValidator checks an uploaded file against upload.max_size and
// upload.allowed_types. It returns the HTTP status to respond with on failure
func FileValidator(fh *multipart.FileHeader) (int, *ValidFile, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, ErrNoFile
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, ErrFileNameTooLong
	}

	if fh.Size <= 0 {
		return http.StatusBadRequest, nil, ErrEmptyFile
	}

	maxFileSize := viper.GetInt64("upload.max_size")
	if fh.Size > maxFileSize {
		return http.StatusRequestEntityTooLarge, nil, ErrFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, fmt.Errorf("failed to open upload, %w", err)
	}

	// Don't trust the client's content type, detect it from the bytes
	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, fmt.Errorf("failed to detect file type, %w", err)
	}

	if !typeAllowed(mime) {
		f.Close()
		return http.StatusUnsupportedMediaType, nil, ErrFileTypeUnsupported
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, fmt.Errorf("failed to rewind upload, %w", err)
	}

	return 0, &ValidFile{
		File: f,
		Name: fh.Filename,
		Size: fh.Size,
		Mime: mime.String(),
	}, nil
}

// typeAllowed matches against upload.allowed_types. Entries are either full
// MIME types or a top level type followed by "/*". No entries allows everything
func typeAllowed(m *mimetype.MIME) bool {
	allowed := viper.GetStringSlice("upload.allowed_types")
	if len(allowed) == 1 && strings.Contains(allowed[0], ",") {
		allowed = strings.Split(allowed[0], ",")
	}

	if len(allowed) == 0 {
		return true
	}

	for _, a := range allowed {
		a = strings.TrimSpace(a)

		if prefix, ok := strings.CutSuffix(a, "/*"); ok {
			for cur := m; cur != nil; cur = cur.Parent() {
				if strings.HasPrefix(cur.String(), prefix+"/") {
					return true
				}
			}
			continue
		}

		if m.Is(a) {
			return true
		}
	}

	return slices.Contains(allowed, "*")
}
