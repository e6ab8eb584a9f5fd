package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// LocalStorage keeps files on a filesystem and serves them under a URL prefix.
type LocalStorage struct {
	fs     afero.Fs
	root   string
	prefix string
}

// NewLocalStorage stores under root on fs; URLs are prefix + key.
func NewLocalStorage(fs afero.Fs, root, prefix string) *LocalStorage {
	if prefix == "" {
		prefix = "/media/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &LocalStorage{fs: fs, root: root, prefix: prefix}
}

// Store writes the upload and returns its key.
func (s *LocalStorage) Store(_ context.Context, upload Upload) (string, error) {
	key := ObjectKey(upload)
	full := path.Join(s.root, key)
	if err := s.fs.MkdirAll(path.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("media: mkdir: %w", err)
	}
	if err := afero.WriteFile(s.fs, full, upload.Data, 0o644); err != nil {
		return "", fmt.Errorf("media: write: %w", err)
	}
	return key, nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *LocalStorage) Delete(_ context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("media: invalid reference %q", ref)
	}
	if err := s.fs.Remove(path.Join(s.root, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: remove: %w", err)
	}
	return nil
}

// URL returns the public path for ref.
func (s *LocalStorage) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.prefix + ref
}

// Prefix is the URL prefix the Handler must be mounted under.
func (s *LocalStorage) Prefix() string {
	return s.prefix
}

// Handler serves stored files; mount it with http.StripPrefix(Prefix()).
func (s *LocalStorage) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir(s.root))
}

var _ Storage = (*LocalStorage)(nil)
