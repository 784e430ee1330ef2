package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"session-auth/internal/model"
	"session-auth/pkg/apierror"
)

// multipartSlack leaves room for the framing around the file part.
const multipartSlack = 64 << 10

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parseMultipart bounds the body at maxFile plus framing and parses it.
// Callers must call cleanupMultipart.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxFile int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFile+multipartSlack)
	if err := r.ParseMultipartForm(maxFile + multipartSlack); err != nil {
		if isPayloadTooLarge(err) {
			return err
		}
		return apierror.New("BAD_REQUEST", "invalid multipart form", err.Error(), http.StatusBadRequest)
	}
	return nil
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// readImagePart returns the file in field, or nil when the field is absent.
func readImagePart(r *http.Request, field string, maxSize int64) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.New("BAD_REQUEST", "invalid multipart file", field, http.StatusBadRequest)
	}
	defer file.Close()

	if header.Size > maxSize {
		return nil, model.ErrImageRejected.WithDetails("image exceeds the size limit")
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, model.ErrImageRejected.WithDetails("image exceeds the size limit")
	}
	return data, nil
}
