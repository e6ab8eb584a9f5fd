// Package media stores post featured images.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes mirrors the 2048 KB upload limit of the post forms.
const DefaultMaxBytes = 2 << 20

var (
	// ErrTooLarge is returned for uploads above the configured limit.
	ErrTooLarge = errors.New("media: file too large")
	// ErrNotImage is returned when the content is not a recognised image.
	ErrNotImage = errors.New("media: file is not an image")
)

// Upload is a file received from a form.
type Upload struct {
	Filename string
	Data     []byte
}

// Storage persists uploads and resolves references to URLs.
type Storage interface {
	Store(ctx context.Context, upload Upload) (string, error)
	Delete(ctx context.Context, ref string) error
	URL(ref string) string
}

// rasterTypes are the accepted image formats. Vector formats are refused
// because SVG can carry script and uploads are served from the app origin.
var rasterTypes = []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/webp"}

// Validate checks the upload size and sniffs its content type.
func Validate(upload Upload, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(upload.Data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(upload.Data), maxBytes)
	}
	if len(upload.Data) == 0 || !mimetype.EqualsAny(mimetype.Detect(upload.Data).String(), rasterTypes...) {
		return ErrNotImage
	}
	return nil
}

// ObjectKey builds a unique key under posts/ with an extension matching the content.
func ObjectKey(upload Upload) string {
	return "posts/" + uuid.NewString() + mimetype.Detect(upload.Data).Extension()
}

// ContentType returns the sniffed MIME type of the upload.
func ContentType(upload Upload) string {
	return mimetype.Detect(upload.Data).String()
}
