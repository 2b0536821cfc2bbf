package catalog

import "github.com/google/uuid"

// Package is a catalog row. Mirrors spec.md §3's Package entity; the Go
// primary key is a UUID (the teacher's convention throughout
// internal/domain) rather than the original's autoincrement rowid.
type Package struct {
	ID          uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null;index:idx_package_name_version,unique" json:"name"`
	Version     string    `gorm:"column:version;index:idx_package_name_version,unique" json:"version,omitempty"`
	HumanName   string    `gorm:"column:human_name" json:"human_name,omitempty"`
	Active      bool      `gorm:"column:active;not null" json:"active"`
	InstallPath string    `gorm:"column:install_path;not null" json:"install_path"`
}

func (Package) TableName() string { return "packages" }

// Model is a catalog row. Mirrors spec.md §3's Model entity.
type Model struct {
	ID          uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	PackageID   uuid.UUID `gorm:"column:package_id;not null;index:idx_model_package_name,unique" json:"package_id"`
	Name        string    `gorm:"column:name;not null;index:idx_model_package_name,unique" json:"name"`
	Type        string    `gorm:"column:type;not null" json:"type"`
	InstallPath string    `gorm:"column:install_path;not null" json:"install_path"`
}

func (Model) TableName() string { return "models" }
