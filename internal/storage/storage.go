// Package storage is the Object Store adapter: it keeps uploaded images and
// hands back the public URL each one is served from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or would escape the store root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// ObjectStore puts and removes objects addressed by a slash-separated key.
//
// Put returns the public URL of the stored object. Keys are never
// overwritten: putting an existing key fails.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Disk stores objects as files under Root and serves them from
// BaseURL + "/uploads/" + key. The HTTP server exposes Root at /uploads/.
type Disk struct {
	root    string
	baseURL string
}

var _ ObjectStore = (*Disk)(nil)

// NewDisk creates root if needed and returns a store writing into it.
func NewDisk(root, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", root, err)
	}
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root is the directory objects are written to.
func (d *Disk) Root() string { return d.root }

// URL returns the public URL for key without checking that it exists.
func (d *Disk) URL(key string) string {
	return d.baseURL + "/uploads/" + key
}

// Put writes r to key. The file is created with O_EXCL, so two uploads can
// never share a key; a partial write is removed before returning.
func (d *Disk) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating directory for %s: %w", key, err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", key, err)
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("storage: writing %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("storage: closing %s: %w", key, err)
	}

	return d.URL(key), nil
}

// Delete removes key. Deleting a missing object is not an error.
func (d *Disk) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

func (d *Disk) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean[1:] != key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
