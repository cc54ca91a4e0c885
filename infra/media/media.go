// Package media stores uploaded and generated images on a delivery host and
// builds transformation URLs for them.
package media

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrTransformUnsupported is returned by hosts that can store images but
// cannot apply AI transformations.
var ErrTransformUnsupported = errors.New("media: transformation not supported by this backend")

// ErrInvalidObject is returned when an object description cannot be placed
// in a transformation safely.
var ErrInvalidObject = errors.New("media: invalid object description")

// UploadOptions describe one upload.
type UploadOptions struct {
	Filename    string
	ContentType string
	Size        int64
	// RemoveBackground applies background removal at upload time.
	RemoveBackground bool
}

// Asset is a stored image.
type Asset struct {
	PublicID  string
	SecureURL string
}

// Host uploads images and derives transformed delivery URLs.
type Host interface {
	Upload(ctx context.Context, r io.Reader, opts UploadOptions) (Asset, error)
	// ObjectRemovalURL returns a URL that serves publicID with object
	// removed by generative fill.
	ObjectRemovalURL(publicID, object string) (string, error)
}

// Sniff returns the detected MIME type and canonical extension of data.
func Sniff(data []byte) (contentType, extension string) {
	mt := mimetype.Detect(data)
	return mt.String(), mt.Extension()
}

// IsImage reports whether data sniffs as an image.
func IsImage(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}

// IsPDF reports whether data sniffs as a PDF document.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}
