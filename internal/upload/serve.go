package upload

import (
	"io/fs"
	"net/http"
)

// Handler serves stored files by name. Directories, including the root,
// answer 404 so the list of uploads is never exposed.
func (s *Store) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(s.dir)})
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
