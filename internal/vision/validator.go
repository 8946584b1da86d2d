// Package vision validates uploaded images before they are sent to any backend.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MIME types attached to the data URI
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// DefaultMaxPixels caps the declared width*height of an upload
const DefaultMaxPixels int64 = 40_000_000

var (
	// ErrEmptyImage is returned for a zero-length upload, before any decoding
	ErrEmptyImage = errors.New("image is empty")
	// ErrTooManyPixels is wrapped in InvalidImageError when the header declares too large an image
	ErrTooManyPixels = errors.New("image dimensions exceed limit")
)

// InvalidImageError reports bytes that do not decode as an image
type InvalidImageError struct {
	Err error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image format: %v", e.Err)
}

func (e *InvalidImageError) Unwrap() error { return e.Err }

// Image is a validated upload
type Image struct {
	Data   []byte
	MIME   string
	Format string // as reported by the decoder
	Width  int
	Height int
}

// Validate is ValidateMaxPixels with DefaultMaxPixels
func Validate(data []byte, filename string) (*Image, error) {
	return ValidateMaxPixels(data, filename, DefaultMaxPixels)
}

// ValidateMaxPixels checks the header first and rejects images declaring more
// than maxPixels, then decodes the rest so truncated or corrupt streams are
// rejected too. A non-positive maxPixels means DefaultMaxPixels.
func ValidateMaxPixels(data []byte, filename string, maxPixels int64) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidImageError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &InvalidImageError{Err: fmt.Errorf("bad dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, &InvalidImageError{
			Err: fmt.Errorf("%w: %dx%d (max %d pixels)", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels),
		}
	}

	// Bounded by the check above
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidImageError{Err: err}
	}

	bounds := img.Bounds()
	return &Image{
		Data:   data,
		MIME:   MIMEFromFilename(filename),
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// MIMEFromFilename maps a .png extension to image/png and everything else to
// image/jpeg. The content is not sniffed.
func MIMEFromFilename(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "png" {
		return MIMEPNG
	}
	return MIMEJPEG
}
