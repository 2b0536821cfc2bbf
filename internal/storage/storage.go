// Package storage exposes the daemon's on-disk layout as pure path
// resolvers, backed by an afero.Fs so code that writes through Layout.Fs
// (installed package files, result files) is testable against an in-memory
// filesystem.
package storage

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Layout resolves paths under a storage root:
//
//	<root>/downloads/<sha256>[.part]
//	<root>/package/<install_id>/{meta.json, module.<ext>, <model>.<type>...}
//	<root>/results/<uuid>
//	<root>/catalog.db
//	<root>/daemon.log
type Layout struct {
	Fs   afero.Fs
	Root string
}

// New wraps dir with the OS filesystem, creating it if necessary.
func New(root string) (*Layout, error) {
	fs := afero.NewOsFs()
	l := &Layout{Fs: fs, Root: root}
	for _, dir := range []string{l.DownloadsDir(), l.PackageDir(), l.ResultsDir()} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// NewWithFs builds a Layout over a caller-supplied afero.Fs (an
// afero.MemMapFs in tests).
func NewWithFs(fs afero.Fs, root string) *Layout {
	return &Layout{Fs: fs, Root: root}
}

func (l *Layout) DownloadsDir() string { return filepath.Join(l.Root, "downloads") }
func (l *Layout) PackageDir() string   { return filepath.Join(l.Root, "package") }
func (l *Layout) ResultsDir() string   { return filepath.Join(l.Root, "results") }
func (l *Layout) CatalogDB() string    { return filepath.Join(l.Root, "catalog.db") }
func (l *Layout) LogFile() string      { return filepath.Join(l.Root, "daemon.log") }

func (l *Layout) DownloadPath(sha256Hex string) string {
	return filepath.Join(l.DownloadsDir(), sha256Hex)
}

func (l *Layout) DownloadPartPath(sha256Hex string) string {
	return l.DownloadPath(sha256Hex) + ".part"
}

func (l *Layout) InstallDir(installID string) string {
	return filepath.Join(l.PackageDir(), installID)
}

func (l *Layout) ResultPath(name string) string {
	return filepath.Join(l.ResultsDir(), name)
}
