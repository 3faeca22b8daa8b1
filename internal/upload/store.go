// Package upload stores product images on local disk and serves them under
// a public URL prefix.
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reboul/storefront/internal/domain/product"
)

// DefaultMaxSize bounds the decoded size of a single image.
const DefaultMaxSize = 5 << 20

var (
	// ErrInvalidImage is returned for payloads that are not a supported
	// base64 data URI.
	ErrInvalidImage = errors.New("invalid image")
	// ErrTooLarge is returned when the decoded image exceeds the limit.
	ErrTooLarge = errors.New("image too large")
	// ErrNotFound is returned when removing an unknown file.
	ErrNotFound = errors.New("file not found")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes images into a directory.
type Store struct {
	dir     string
	prefix  string
	maxSize int
}

// NewStore creates the directory when needed. Stored files are referenced
// as prefix + "/" + filename.
func NewStore(dir, prefix string, maxSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		dir:     dir,
		prefix:  strings.TrimSuffix(prefix, "/"),
		maxSize: maxSize,
	}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Save decodes a data URI, writes it under a generated name and returns the
// file name.
func (s *Store) Save(ctx context.Context, dataURI string) (string, error) {
	ext, payload, err := parseDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > s.maxSize+2 {
		return "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if len(data) > s.maxSize {
		return "", ErrTooLarge
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrap(err, "write image")
	}

	zctx.From(ctx).Info("Image stored",
		zap.String("filename", name),
		zap.Int("bytes", len(data)),
	)
	return name, nil
}

// Upload stores the image and returns its public URL. Rejected payloads are
// reported as a product.ValidationError.
func (s *Store) Upload(ctx context.Context, dataURI string) (string, error) {
	name, err := s.Save(ctx, dataURI)
	if errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrTooLarge) {
		return "", &product.ValidationError{Field: "images", Reason: err.Error()}
	}
	if err != nil {
		return "", err
	}
	return s.URL(name), nil
}

// Remove deletes the file referenced by url.
func (s *Store) Remove(ctx context.Context, url string) error {
	return s.Delete(ctx, path.Base(url))
}

// Delete removes a stored file by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	if !validName(name) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "remove image")
	}

	zctx.From(ctx).Info("Image removed", zap.String("filename", name))
	return nil
}

// URL returns the public URL of a stored file.
func (s *Store) URL(name string) string {
	return s.prefix + "/" + name
}

func parseDataURI(uri string) (ext, payload string, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", ErrInvalidImage
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", ErrInvalidImage
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", "", ErrInvalidImage
	}
	ext, ok = extensions[strings.ToLower(mime)]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, mime)
	}
	return ext, payload, nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
