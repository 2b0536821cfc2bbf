package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/yungbote/neurod/internal/catalog"
	"github.com/yungbote/neurod/internal/httpapi/httputil"
	"github.com/yungbote/neurod/internal/installer"
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/scheduler"
)

// installSpec is the union of the three request-body shapes spec.md §6
// accepts for /package/install and /package/fetch: {name}, {localfile}, or
// {url, hash}.
type installSpec struct {
	Name      string `json:"name"`
	LocalFile string `json:"localfile"`
	URL       string `json:"url"`
	Hash      string `json:"hash"`
}

func (s installSpec) validate() error {
	n := strings.TrimSpace(s.Name) != ""
	l := strings.TrimSpace(s.LocalFile) != ""
	u := strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.Hash) != ""
	count := 0
	for _, ok := range []bool{n, l, u} {
		if ok {
			count++
		}
	}
	if count != 1 {
		return apierr.New(apierr.ValidationError, "request must provide exactly one of name, localfile, or (url and hash)", nil)
	}
	return nil
}

func decodeInstallSpec(w http.ResponseWriter, r *http.Request, maxBytes int64) (installSpec, error) {
	var spec installSpec
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return installSpec{}, apierr.New(apierr.ValidationError, "invalid multipart body", nil)
		}
		raw := r.FormValue("specfile")
		if strings.TrimSpace(raw) == "" {
			return installSpec{}, apierr.New(apierr.ValidationError, "missing specfile field", nil)
		}
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return installSpec{}, apierr.New(apierr.ValidationError, "specfile was not valid json", nil)
		}
		return spec, spec.validate()
	}
	if err := httputil.DecodeJSON(w, r, maxBytes, &spec); err != nil {
		return installSpec{}, apierr.New(apierr.ValidationError, "request was not json", nil)
	}
	return spec, spec.validate()
}

// buildPackageInstall builds the install-or-fetch job, resolving name-only
// requests against the configured repository and url/hash requests through
// the downloader, per spec.md §6's three install-body variants.
func (h *Handler) buildPackageInstall(activate bool) func(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	return func(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
		spec, err := decodeInstallSpec(w, r, h.Config.HTTP.MaxRequestBytes)
		if err != nil {
			return nil, err
		}

		return func(jc *scheduler.JobContext) (any, error) {
			archivePath := strings.TrimSpace(spec.LocalFile)
			url, hash := spec.URL, spec.Hash

			if strings.TrimSpace(spec.Name) != "" {
				entry, err := h.Repository.Lookup(jc.Ctx, spec.Name)
				if err != nil {
					return nil, err
				}
				url, hash = entry.URL, entry.SHA256
			}

			if archivePath == "" {
				jc.Report("phase", "downloading")
				path, err := h.Downloader.Get(jc.Ctx, url, hash, jc.Job())
				if err != nil {
					return nil, err
				}
				archivePath = path
			}

			sess, ok := jc.Session.(*catalog.Session)
			if !ok {
				return nil, apierr.New(apierr.InternalError, "job has no catalog session", nil)
			}

			jc.Report("phase", "installing")
			res, err := h.Installer.Install(jc.Ctx, sess, installer.Request{
				ArchivePath: archivePath,
				Activate:    activate,
				ExistOK:     false,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"package_id": res.PackageID,
				"install_id": res.InstallID,
				"name":       res.Name,
				"version":    res.Version,
				"activated":  activate,
			}, nil
		}, nil
	}
}

// packageNameVersion is the request body shape shared by activate,
// deactivate, and remove.
type packageNameVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (h *Handler) resolvePackage(sess *catalog.Session, req packageNameVersion) (catalog.Package, error) {
	if strings.TrimSpace(req.Version) != "" {
		return sess.PackageByNameVersion(req.Name, req.Version)
	}
	return sess.PackageLatest(req.Name)
}

func (h *Handler) buildPackageActivate(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	var req packageNameVersion
	if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		return nil, apierr.New(apierr.ValidationError, "name is required", nil)
	}
	return func(jc *scheduler.JobContext) (any, error) {
		sess := jc.Session.(*catalog.Session)
		pkg, err := h.resolvePackage(sess, req)
		if err != nil {
			return nil, err
		}
		if err := sess.Activate(pkg.ID); err != nil {
			return nil, err
		}
		destDir := h.Layout.InstallDir(pkg.InstallPath)
		modulePath, err := findModuleFile(destDir)
		if err != nil {
			return nil, err
		}
		if err := h.Loader.Load(pkg.ID, destDir, modulePath); err != nil {
			return nil, err
		}
		return map[string]any{"status": "OK", "package_id": pkg.ID}, nil
	}, nil
}

// findModuleFile locates the handler module the installer copied into
// destDir as "module.<ext>" (installer.Install always names it this way
// regardless of the manifest's original module filename).
func findModuleFile(destDir string) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", apierr.Wrap(apierr.PackageStorageError, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "module.") {
			return destDir + "/" + e.Name(), nil
		}
	}
	return "", apierr.New(apierr.PackageInstallError, "installed package has no handler module", nil)
}

func (h *Handler) buildPackageDeactivate(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	var req packageNameVersion
	if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		return nil, apierr.New(apierr.ValidationError, "name is required", nil)
	}
	return func(jc *scheduler.JobContext) (any, error) {
		sess := jc.Session.(*catalog.Session)
		pkg, err := h.resolvePackage(sess, req)
		if err != nil {
			return nil, err
		}
		if err := sess.Deactivate(pkg.ID); err != nil {
			return nil, err
		}
		h.Registry.Clear(pkg.ID)
		return map[string]any{"status": "OK", "package_id": pkg.ID}, nil
	}, nil
}

func (h *Handler) buildPackageRemove(w http.ResponseWriter, r *http.Request) (scheduler.JobFunc, error) {
	var req packageNameVersion
	if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		return nil, apierr.New(apierr.ValidationError, "name is required", nil)
	}
	return func(jc *scheduler.JobContext) (any, error) {
		sess := jc.Session.(*catalog.Session)
		pkg, err := h.resolvePackage(sess, req)
		if err != nil {
			return nil, err
		}
		if err := sess.Remove(pkg.ID); err != nil {
			return nil, err
		}
		h.Registry.Clear(pkg.ID)
		_ = h.Layout.Fs.RemoveAll(h.Layout.InstallDir(pkg.InstallPath))
		return map[string]any{"status": "OK"}, nil
	}, nil
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) handlePackageSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := httputil.DecodeJSON(w, r, h.Config.HTTP.MaxRequestBytes, &req); err != nil {
		httputil.WriteAPIError(w, apierr.New(apierr.ValidationError, "request was not json", nil))
		return
	}
	entries, err := h.Repository.Search(r.Context(), req.Query)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": entries})
}

func (h *Handler) handlePackageList(w http.ResponseWriter, r *http.Request) {
	sess := h.Catalog.Session()
	defer sess.Rollback()
	pkgs, err := sess.ListPackages()
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"packages": pkgs})
}
