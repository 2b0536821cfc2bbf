// Package catalog persists package and model rows and enforces the
// uniqueness/version-resolution rules from spec.md §3–§4.3.
package catalog

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yungbote/neurod/internal/platform/apierr"
)

// Catalog owns the packages/models tables. Schema creation is guarded by a
// sync.Once, the Go idiom for spec.md §5's "process-wide init mutex."
type Catalog struct {
	db       *gorm.DB
	initOnce sync.Once
	initErr  error
}

func Open(dsn string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, err)
	}
	c := &Catalog{db: db}
	if err := c.ensureSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) ensureSchema() error {
	c.initOnce.Do(func() {
		c.initErr = c.db.AutoMigrate(&Package{}, &Model{})
	})
	if c.initErr != nil {
		return apierr.Wrap(apierr.DatabaseError, c.initErr)
	}
	return nil
}

// Session begins a transaction bound to one worker's job execution, per
// spec.md §4.3's "per-worker transactional session" discipline.
func (c *Catalog) Session() *Session {
	return &Session{tx: c.db.Begin()}
}

// Session wraps one worker's transactional view of the catalog for the
// duration of a single job. Commit on DONE, Rollback otherwise, mirroring
// the teacher's ClaimNextRunnable transaction idiom.
type Session struct {
	tx *gorm.DB
}

func (s *Session) Commit() error   { return s.tx.Commit().Error }
func (s *Session) Rollback() error { return s.tx.Rollback().Error }

// InsertPackage inserts a new package row, translating a uniqueness
// violation into PackageAlreadyExists per spec.md §4.3.
func (s *Session) InsertPackage(p *Package) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := s.tx.Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return apierr.New(apierr.PackageAlreadyExists, "package "+p.Name+"@"+p.Version+" already exists",
				map[string]any{"name": p.Name, "version": p.Version})
		}
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	return nil
}

func (s *Session) InsertModel(m *Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := s.tx.Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return apierr.New(apierr.PackageAlreadyExists, "model "+m.Name+" already exists on package",
				map[string]any{"package_id": m.PackageID, "name": m.Name})
		}
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	return nil
}

func (s *Session) PackageByNameVersion(name, version string) (Package, error) {
	var p Package
	err := s.tx.Where("name = ? AND version = ?", name, version).First(&p).Error
	if err != nil {
		return Package{}, apierr.New(apierr.MissingEntry, "package "+name+"@"+version+" not found", nil)
	}
	return p, nil
}

// PackageLatest resolves the "latest" row for name per spec.md §4.3's
// version-ordering policy.
func (s *Session) PackageLatest(name string) (Package, error) {
	var candidates []Package
	if err := s.tx.Where("name = ?", name).Find(&candidates).Error; err != nil {
		return Package{}, apierr.Wrap(apierr.DatabaseError, err)
	}
	best, ok := pickLatest(candidates)
	if !ok {
		return Package{}, apierr.New(apierr.MissingEntry, "no versions of package "+name+" installed", nil)
	}
	return best, nil
}

func (s *Session) PackageActive(name string) (Package, error) {
	var p Package
	err := s.tx.Where("name = ? AND active = ?", name, true).First(&p).Error
	if err != nil {
		return Package{}, apierr.New(apierr.MissingEntry, "package "+name+" is not active", nil)
	}
	return p, nil
}

func (s *Session) PackageByID(id uuid.UUID) (Package, error) {
	var p Package
	if err := s.tx.Where("id = ?", id).First(&p).Error; err != nil {
		return Package{}, apierr.New(apierr.MissingEntry, "package not found", nil)
	}
	return p, nil
}

func (s *Session) ModelByPackageAndName(packageID uuid.UUID, name string) (Model, error) {
	var m Model
	err := s.tx.Where("package_id = ? AND name = ?", packageID, name).First(&m).Error
	if err != nil {
		return Model{}, apierr.New(apierr.MissingEntry, "model "+name+" not found", nil)
	}
	return m, nil
}

// Activate sets active=true on the target package and active=false on every
// other package sharing its name, preserving the invariant "at most one
// active package per name" (spec.md §3).
func (s *Session) Activate(id uuid.UUID) error {
	p, err := s.PackageByID(id)
	if err != nil {
		return err
	}
	if err := s.tx.Model(&Package{}).Where("name = ?", p.Name).Update("active", false).Error; err != nil {
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	if err := s.tx.Model(&Package{}).Where("id = ?", id).Update("active", true).Error; err != nil {
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	return nil
}

func (s *Session) Deactivate(id uuid.UUID) error {
	if err := s.tx.Model(&Package{}).Where("id = ?", id).Update("active", false).Error; err != nil {
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	return nil
}

// Remove deletes a package and its models. Catalog rows disappear
// atomically within the session; on-disk install directory cleanup is the
// installer's job (spec.md §4.4's intentional asymmetry).
func (s *Session) Remove(id uuid.UUID) error {
	if err := s.tx.Where("package_id = ?", id).Delete(&Model{}).Error; err != nil {
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	if err := s.tx.Where("id = ?", id).Delete(&Package{}).Error; err != nil {
		return apierr.Wrap(apierr.DatabaseError, err)
	}
	return nil
}

func (s *Session) ListPackages() ([]Package, error) {
	var out []Package
	if err := s.tx.Find(&out).Error; err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
}
