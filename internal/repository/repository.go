// Package repository fetches and caches the daemon's remote package index:
// a line-delimited `<name>|<url>|<sha256>` document consulted by name-only
// installs and by substring search.
//
// Grounded on hivemind_daemon/package/repo.py's module-level
// `_package_index` cache, re-expressed as an explicit struct guarded by a
// mutex instead of a package-global.
package repository

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

// Entry is one line of the remote index.
type Entry struct {
	Name   string
	URL    string
	SHA256 string
}

// Repository lazily fetches and caches the index at url, re-fetching only
// when Refresh is called explicitly (mirroring the original's "fetch once,
// then serve from memory" behavior).
type Repository struct {
	url    string
	client *http.Client

	mu    sync.Mutex
	index map[string]Entry
}

func New(url string, client *http.Client) *Repository {
	if client == nil {
		client = http.DefaultClient
	}
	return &Repository{url: url, client: client}
}

// Lookup resolves name against the cached index, pulling it on first use.
func (r *Repository) Lookup(ctx context.Context, name string) (Entry, error) {
	idx, err := r.ensureIndex(ctx)
	if err != nil {
		return Entry{}, err
	}
	e, ok := idx[name]
	if !ok {
		return Entry{}, apierr.New(apierr.PackageInstallError, "could not find package "+name, nil)
	}
	return e, nil
}

// Search returns every entry whose name contains query as a case-insensitive
// substring.
func (r *Repository) Search(ctx context.Context, query string) ([]Entry, error) {
	idx, err := r.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	out := make([]Entry, 0)
	for _, e := range idx {
		if strings.Contains(strings.ToLower(e.Name), query) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Refresh forces a re-pull of the index on next access.
func (r *Repository) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = nil
}

func (r *Repository) ensureIndex(ctx context.Context) (map[string]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		return r.index, nil
	}
	if strings.TrimSpace(r.url) == "" {
		return nil, apierr.New(apierr.RepositoryError, "no repository_url configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.RepositoryError, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apierr.New(apierr.RepositoryError, "could not sync repository from "+r.url, nil)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, apierr.New(apierr.RepositoryError, "could not sync repository from "+r.url, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.RepositoryError, err)
	}

	idx := make(map[string]Entry)
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			return nil, apierr.New(apierr.RepositoryError, "malformed repository index line: "+line, nil)
		}
		idx[parts[0]] = Entry{Name: parts[0], URL: parts[1], SHA256: parts[2]}
	}
	r.index = idx
	return idx, nil
}
