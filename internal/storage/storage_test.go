package storage

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLayout_PathResolvers(t *testing.T) {
	l := NewWithFs(afero.NewMemMapFs(), "/data")

	require.Equal(t, "/data/downloads/abc", l.DownloadPath("abc"))
	require.Equal(t, "/data/downloads/abc.part", l.DownloadPartPath("abc"))
	require.Equal(t, "/data/package/install-1", l.InstallDir("install-1"))
	require.Equal(t, "/data/results/r1", l.ResultPath("r1"))
	require.Equal(t, "/data/catalog.db", l.CatalogDB())
}
