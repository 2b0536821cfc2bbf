package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dsn := "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	c, err := Open(dsn)
	require.NoError(t, err)
	return c
}

func TestSession_InsertAndActivateInvariant(t *testing.T) {
	c := openTestCatalog(t)

	s := c.Session()
	p1 := &Package{Name: "foo", Version: "1.0", InstallPath: "install-1"}
	require.NoError(t, s.InsertPackage(p1))
	p2 := &Package{Name: "foo", Version: "2.0", InstallPath: "install-2"}
	require.NoError(t, s.InsertPackage(p2))

	require.NoError(t, s.Activate(p1.ID))
	require.NoError(t, s.Activate(p2.ID))
	require.NoError(t, s.Commit())

	s2 := c.Session()
	active, err := s2.PackageActive("foo")
	require.NoError(t, err)
	require.Equal(t, p2.ID, active.ID)
	require.NoError(t, s2.Commit())
}

func TestSession_DuplicateNameVersionRejected(t *testing.T) {
	c := openTestCatalog(t)
	s := c.Session()
	require.NoError(t, s.InsertPackage(&Package{Name: "dup", Version: "1.0", InstallPath: "a"}))
	err := s.InsertPackage(&Package{Name: "dup", Version: "1.0", InstallPath: "b"})
	require.Error(t, err)
	require.NoError(t, s.Rollback())
}

func TestSession_RollbackLeavesNoResidue(t *testing.T) {
	c := openTestCatalog(t)
	s := c.Session()
	p := &Package{Name: "rollback-me", Version: "1.0", InstallPath: "x"}
	require.NoError(t, s.InsertPackage(p))
	require.NoError(t, s.Rollback())

	s2 := c.Session()
	_, err := s2.PackageByID(p.ID)
	require.Error(t, err)
	require.NoError(t, s2.Commit())
}

func TestSession_RemoveDropsModels(t *testing.T) {
	c := openTestCatalog(t)
	s := c.Session()
	p := &Package{Name: "removable", Version: "1.0", InstallPath: "x"}
	require.NoError(t, s.InsertPackage(p))
	m := &Model{PackageID: p.ID, Name: "m1", Type: "onnx", InstallPath: "m1.onnx"}
	require.NoError(t, s.InsertModel(m))
	require.NoError(t, s.Remove(p.ID))
	require.NoError(t, s.Commit())

	s2 := c.Session()
	_, err := s2.ModelByPackageAndName(p.ID, "m1")
	require.Error(t, err)
	require.NoError(t, s2.Commit())
}

func TestSession_PackageByIDMissing(t *testing.T) {
	c := openTestCatalog(t)
	s := c.Session()
	_, err := s.PackageByID(uuid.New())
	require.Error(t, err)
	require.NoError(t, s.Rollback())
}
