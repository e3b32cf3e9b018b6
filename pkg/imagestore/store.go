// Package imagestore keeps uploaded post images on local disk and serves them back.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"pinboard/pkg/apperr"
	"pinboard/pkg/logger"
)

const (
	MaxImageSize = 10 << 20
	URLPrefix    = "/uploads/"
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

type Image struct {
	Key  string
	URL  string
	MIME string
}

type Store struct {
	dir     string
	baseURL string
}

// New makes sure dir exists. baseURL is the public server address the
// /uploads/ handler is reachable at.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagestore: can't create upload dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save sniffs the content, rejects anything that is not a supported image and
// writes it under a fresh random key.
func (s *Store) Save(ctx context.Context, r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, apperr.Validation("failed reading the uploaded image")
	}
	if len(data) == 0 {
		return nil, apperr.Validation("A post must have an image.")
	}
	if len(data) > MaxImageSize {
		return nil, apperr.Validation("image cannot be larger than %d MiB", MaxImageSize>>20)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return nil, apperr.Validation("unsupported image type %s", mtype.String())
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, apperr.Internal("failed storing image", err)
	}
	key := id + mtype.Extension()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, apperr.Internal("failed storing image", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return nil, apperr.Internal("failed storing image", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, apperr.Internal("failed storing image", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return nil, apperr.Internal("failed storing image", err)
	}

	logger.Log(ctx).Debugw("image stored", "key", key, "mime", mtype.String(), "size", len(data))
	return &Image{Key: key, URL: s.baseURL + URLPrefix + key, MIME: mtype.String()}, nil
}

// Delete removes a stored image. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return apperr.Validation("invalid image key")
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("imagestore: failed removing %s: %w", key, err)
	}
	logger.Log(ctx).Debugw("image released", "key", key)
	return nil
}

// Handler serves stored images under URLPrefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.dir)))
}
