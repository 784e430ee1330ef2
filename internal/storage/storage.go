package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DiskUploader stores objects as files under a media root and serves them
// from baseURL. It stands in for an object-storage bucket.
type DiskUploader struct {
	validator *PathValidator
	baseURL   string
}

func NewDiskUploader(root string, baseURL string) (*DiskUploader, error) {
	validator, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(validator.RootAbs(), 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse media base url: %w", err)
	}

	return &DiskUploader{validator: validator, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *DiskUploader) RootAbs() string {
	return u.validator.RootAbs()
}

// Upload writes data under key and returns its public URL. The file is
// written to a temp name and renamed so readers never see a partial image.
func (u *DiskUploader) Upload(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resolved, err := u.validator.ResolveKey(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(resolved), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s object %q: %w", contentType, key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return "", fmt.Errorf("publish object %q: %w", key, err)
	}

	return u.URL(key), nil
}

// Remove deletes key; a missing object is not an error.
func (u *DiskUploader) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := u.validator.ResolveKey(key)
	if err != nil {
		return err
	}

	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// KeyFor reverses URL. It reports false for URLs outside baseURL and for
// keys that would escape the media root.
func (u *DiskUploader) KeyFor(rawURL string) (string, bool) {
	prefix := u.baseURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, prefix)
	if key == "" {
		return "", false
	}
	if _, err := u.validator.ResolveKey(key); err != nil {
		return "", false
	}
	return key, true
}

func (u *DiskUploader) URL(key string) string {
	return u.baseURL + "/" + strings.Trim(strings.ReplaceAll(key, `\`, "/"), "/")
}
