package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskUploaderUploadAndRemove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	uploader, err := NewDiskUploader(root, "https://cdn.example.com/media/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := uploader.Upload(ctx, "profiles/42/avatar.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/media/profiles/42/avatar.png", url)

	content, err := os.ReadFile(filepath.Join(uploader.RootAbs(), "profiles", "42", "avatar.png"))
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(content))

	entries, err := os.ReadDir(filepath.Join(uploader.RootAbs(), "profiles", "42"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")

	require.NoError(t, uploader.Remove(ctx, "profiles/42/avatar.png"))
	require.NoError(t, uploader.Remove(ctx, "profiles/42/avatar.png"))
	_, err = os.Stat(filepath.Join(uploader.RootAbs(), "profiles", "42", "avatar.png"))
	require.True(t, os.IsNotExist(err))
}

func TestDiskUploaderRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	uploader, err := NewDiskUploader(t.TempDir(), "/media")
	require.NoError(t, err)

	_, err = uploader.Upload(context.Background(), "../outside.png", "image/png", []byte("x"))
	require.Error(t, err)
}

func TestDiskUploaderHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	uploader, err := NewDiskUploader(t.TempDir(), "/media")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = uploader.Upload(ctx, "profiles/1/a.png", "image/png", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiskUploaderKeyForReversesURL(t *testing.T) {
	t.Parallel()

	uploader, err := NewDiskUploader(t.TempDir(), "https://cdn.example.com/media/")
	require.NoError(t, err)

	url := uploader.URL("profiles/7/a.png")
	key, ok := uploader.KeyFor(url)
	require.True(t, ok)
	require.Equal(t, "profiles/7/a.png", key)

	for _, foreign := range []string{
		"https://phinf.pstatic.net/profile.png",
		"https://cdn.example.com/media/",
		"https://cdn.example.com/media/../etc/passwd",
		"https://cdn.example.com/mediaX/profiles/7/a.png",
	} {
		_, ok := uploader.KeyFor(foreign)
		require.False(t, ok, foreign)
	}
}

func TestMediaHandlerServesFilesButNotDirectories(t *testing.T) {
	t.Parallel()

	uploader, err := NewDiskUploader(t.TempDir(), "/media")
	require.NoError(t, err)
	_, err = uploader.Upload(context.Background(), "profiles/7/a.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)

	handler := uploader.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles/7/a.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "png-bytes", rec.Body.String())

	for _, dir := range []string{"/profiles/", "/profiles/7/", "/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, dir, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, dir)
		require.NotContains(t, rec.Body.String(), "a.png", dir)
	}
}
