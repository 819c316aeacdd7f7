// Package media validates uploaded entry images before they reach the object store.
//
// The type is sniffed from the file's leading bytes with mimetype. The client's
// Content-Type header and file name are ignored: both are trivially spoofed.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload cap for entry images (5 MB).
const DefaultMaxBytes int64 = 5 << 20

var (
	ErrEmpty           = errors.New("file is empty")
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// allowed maps accepted MIME types to the extension objects are stored with.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// Image is a validated upload held in memory.
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Reader returns a fresh reader over the image bytes.
func (img *Image) Reader() io.Reader { return bytes.NewReader(img.Data) }

// Size is the image length in bytes.
func (img *Image) Size() int64 { return int64(len(img.Data)) }

// Read consumes r and returns the image if it is a JPEG, PNG or GIF of at
// most maxBytes. It reads at most maxBytes+1 bytes, so an oversized upload is
// rejected without being buffered in full.
func Read(r io.Reader, maxBytes int64) (*Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: reading upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, ErrEmpty
	case int64(len(data)) > maxBytes:
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if ext, ok := allowed[m.String()]; ok {
			return &Image{Data: data, ContentType: m.String(), Extension: ext}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}
