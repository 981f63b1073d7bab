// Package blob stores uploaded files (product images) and resolves their public URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
	ErrTooLarge    = errors.New("blob exceeds the size limit")
)

// Blob is a stored file.
type Blob struct {
	Path        string
	ContentType string
	Data        []byte
}

// Store uploads and serves blobs.
type Store interface {
	// Upload stores data under path, replacing any previous content, and returns its public URL.
	Upload(ctx context.Context, path string, data []byte) (string, error)
	// PublicURL is the URL under which path is served.
	PublicURL(path string) string
	Get(ctx context.Context, path string) (Blob, error)
}

// urlBuilder joins blob paths onto the public base URL.
type urlBuilder struct {
	base    string
	maxSize int64
}

func newURLBuilder(base string, maxSize int64) urlBuilder {
	return urlBuilder{base: strings.TrimRight(base, "/"), maxSize: maxSize}
}

func (u urlBuilder) PublicURL(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return u.base + "/" + strings.Join(segments, "/")
}

// check validates an upload and detects its content type.
func (u urlBuilder) check(path string, data []byte) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	if u.maxSize > 0 && int64(len(data)) > u.maxSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return mimetype.Detect(data).String(), nil
}

// ValidatePath rejects empty, absolute and traversing paths.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range strings.Split(path, "/") {
		if s == "" || s == "." || s == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}
