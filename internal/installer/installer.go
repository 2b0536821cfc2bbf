// Package installer implements spec.md §4.4's archive-to-catalog install
// pipeline.
package installer

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/loader"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/storage"
)

type Installer struct {
	layout *storage.Layout
	loader *loader.Loader
}

func New(layout *storage.Layout, ldr *loader.Loader) *Installer {
	return &Installer{layout: layout, loader: ldr}
}

// Request describes one install call, covering both the "install" (activate
// the moment it lands) and "fetch" (download/install without activating)
// surfaces. Per the resolved Open Question (SPEC_FULL.md, original_source/
// server.py), Activate=false is "fetch" semantics.
type Request struct {
	// ArchivePath is a path on the daemon host: either a .zip file or an
	// already-extracted directory.
	ArchivePath string
	Activate    bool
	ExistOK     bool
}

type Result struct {
	PackageID   uuid.UUID
	InstallID   string
	AlreadyHad  bool
	Name        string
	Version     string
}

// Install runs spec.md §4.4's eight-step pipeline against sess, which the
// caller (the scheduler worker) commits or rolls back based on the job's
// terminal state.
func (in *Installer) Install(ctx context.Context, sess *catalog.Session, req Request) (Result, error) {
	stageDir, err := os.MkdirTemp("", "neurod-install-*")
	if err != nil {
		return Result{}, apierr.Wrap(apierr.PackageStorageError, err)
	}
	defer os.RemoveAll(stageDir)

	if err := stage(req.ArchivePath, stageDir); err != nil {
		return Result{}, err
	}

	metaPath := filepath.Join(stageDir, "meta.json")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return Result{}, apierr.New(apierr.PackageInstallError, "archive missing meta.json", nil)
	}
	manifest, err := ParseManifest(raw)
	if err != nil {
		return Result{}, err
	}

	installID := uuid.New().String()

	pkg := &catalog.Package{
		Name:        manifest.Name,
		Version:     manifest.Version,
		HumanName:   manifest.HumanName,
		InstallPath: installID,
	}
	if err := sess.InsertPackage(pkg); err != nil {
		if req.ExistOK {
			if ae := apierr.As(err); ae.Kind == apierr.PackageAlreadyExists {
				existing, lookupErr := sess.PackageByNameVersion(manifest.Name, manifest.Version)
				if lookupErr != nil {
					return Result{}, err
				}
				return Result{PackageID: existing.ID, InstallID: existing.InstallPath, AlreadyHad: true, Name: existing.Name, Version: existing.Version}, nil
			}
		}
		return Result{}, err
	}

	for name, entry := range manifest.Model {
		m := &catalog.Model{
			PackageID:   pkg.ID,
			Name:        name,
			Type:        entry.Type,
			InstallPath: name + "." + entry.Type,
		}
		if err := sess.InsertModel(m); err != nil {
			return Result{}, err
		}
	}

	moduleExt := filepath.Ext(manifest.Module)
	copies := map[string]string{
		"meta.json":      "meta.json",
		manifest.Module:  "module" + moduleExt,
	}
	for name, entry := range manifest.Model {
		copies[entry.File] = name + "." + entry.Type
	}

	// Verify every source file exists before any copy (spec.md §4.4 step 6).
	for src := range copies {
		if !exists(filepath.Join(stageDir, src)) {
			return Result{}, apierr.New(apierr.PackageInstallError, "archive missing file referenced by manifest: "+src, nil)
		}
	}

	destDir := in.layout.InstallDir(installID)
	if err := in.layout.Fs.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, apierr.Wrap(apierr.PackageStorageError, err)
	}
	for src, dst := range copies {
		if err := copyFile(in.layout.Fs, filepath.Join(stageDir, src), filepath.Join(destDir, dst)); err != nil {
			return Result{}, apierr.Wrap(apierr.PackageStorageError, err)
		}
	}

	if req.Activate {
		modulePath := filepath.Join(destDir, "module"+moduleExt)
		if err := in.loader.Load(pkg.ID, destDir, modulePath); err != nil {
			return Result{}, err
		}
		if err := sess.Activate(pkg.ID); err != nil {
			return Result{}, err
		}
	}

	return Result{PackageID: pkg.ID, InstallID: installID, Name: pkg.Name, Version: pkg.Version}, nil
}

// stage copies or extracts src (a zip file or a directory) into dstDir.
func stage(src, dstDir string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return apierr.New(apierr.PackageStorageError, "archive not found: "+src, nil)
	}
	if fi.IsDir() {
		return copyTree(src, dstDir)
	}
	return unzip(src, dstDir)
}

func unzip(archivePath, dstDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return apierr.New(apierr.PackageInstallError, "not a valid zip archive", nil)
	}
	defer r.Close()

	for _, f := range r.File {
		dest := filepath.Join(dstDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return apierr.Wrap(apierr.PackageStorageError, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return apierr.Wrap(apierr.PackageStorageError, err)
		}
		rc, err := f.Open()
		if err != nil {
			return apierr.Wrap(apierr.PackageInstallError, err)
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return apierr.Wrap(apierr.PackageStorageError, err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return apierr.Wrap(apierr.PackageStorageError, copyErr)
		}
	}
	return nil
}

func copyTree(srcDir, dstDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return copyOSFile(path, dest)
	})
}

func copyOSFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteMetaForTest is a small helper used by tests to build a fixture
// archive directory without hand-writing JSON each time.
func WriteMetaForTest(dir string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
}
