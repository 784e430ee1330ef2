package util

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"

	"session-auth/internal/model"
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageInfo is what DetectImage learned from the uploaded bytes.
type ImageInfo struct {
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// DetectImage sniffs the content type from the bytes themselves, never from
// the client-supplied header, and requires the image header to decode.
func DetectImage(data []byte, maxSize int64) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, model.ErrImageRejected.WithDetails("empty upload")
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return ImageInfo{}, model.ErrImageRejected.WithDetails("image exceeds size limit")
	}

	contentType := http.DetectContentType(data)
	if semi := strings.IndexByte(contentType, ';'); semi >= 0 {
		contentType = contentType[:semi]
	}
	extension, ok := imageExtensions[contentType]
	if !ok {
		return ImageInfo{}, model.ErrImageRejected.WithDetails(contentType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, model.ErrImageRejected.WithDetails("unreadable " + contentType)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, model.ErrImageRejected.WithDetails("empty " + format + " image")
	}

	return ImageInfo{ContentType: contentType, Extension: extension, Width: cfg.Width, Height: cfg.Height}, nil
}
