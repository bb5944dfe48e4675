package version

import "time"

// MarkDefective is the only mark kind the closed set of §3 currently
// defines.
const MarkDefective = "DEFECTIVE"

// Repository is a tracked upstream module repository (owner/repo).
type Repository struct {
	ID                  uint `gorm:"primaryKey"`
	Path                string `gorm:"uniqueIndex;not null"`
	LastOnlineRetrieval time.Time
}

// Tag is one upstream tag of a Repository.
type Tag struct {
	ID           uint `gorm:"primaryKey"`
	RepositoryID uint   `gorm:"uniqueIndex:idx_repo_tag_name;not null"`
	Name         string `gorm:"uniqueIndex:idx_repo_tag_name;not null"`
	ZipballURL   string
	TarballURL   string
	CommitURL    string
}

// Mark is an administrative flag on a specific tag (e.g. DEFECTIVE),
// excluding it from selection as "latest".
type Mark struct {
	ID    uint   `gorm:"primaryKey"`
	TagID uint   `gorm:"uniqueIndex:idx_tag_mark;not null"`
	Mark  string `gorm:"uniqueIndex:idx_tag_mark;not null"`
}

func (Repository) TableName() string { return "repositories" }
func (Tag) TableName() string        { return "tags" }
func (Mark) TableName() string       { return "marks" }
