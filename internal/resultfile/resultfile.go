// Package resultfile implements spec.md §4.10's result file handle: large
// transform outputs are written under results/<uuid> and returned to the
// caller as a {"file_ref": <uuid>} sentinel instead of inline in the JSON
// response.
package resultfile

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/storage"
)

type Store struct {
	layout *storage.Layout
}

func New(layout *storage.Layout) *Store {
	return &Store{layout: layout}
}

// Write allocates a fresh result name and copies r's bytes to it, returning
// the sentinel value a transform should embed in its JSON result.
func (s *Store) Write(r io.Reader) (map[string]any, error) {
	name := uuid.New().String()
	path := s.layout.ResultPath(name)
	f, err := s.layout.Fs.Create(path)
	if err != nil {
		return nil, apierr.Wrap(apierr.PackageStorageError, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return nil, apierr.Wrap(apierr.PackageStorageError, err)
	}
	return map[string]any{"file_ref": name}, nil
}

// ServeHTTP streams the named result file's bytes. The daemon never
// interprets the file's contents (spec.md §4.10); it just transfers bytes.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request, name string) {
	path := s.layout.ResultPath(name)
	f, err := s.layout.Fs.Open(path)
	if err != nil {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "result not found", http.StatusNotFound)
		return
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, name, modTimeOrNow(info.ModTime()), rs)
}

func modTimeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
