package storage

import (
	"net/http"
	"os"
)

// Handler serves stored objects. Directories answer 404 so a prefix such as
// profiles/ cannot be used to enumerate uploads.
func (u *DiskUploader) Handler() http.Handler {
	return http.FileServer(filesOnly{root: http.Dir(u.RootAbs())})
}

type filesOnly struct {
	root http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.root.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
