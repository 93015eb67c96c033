package assets

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subject is the owner entity (customer or product) an asset belongs to. It
// carries three independently-stored name projections: CanonicalID (the
// datastore identifier, possibly suffixed), DisplaySlug (human-facing,
// independently editable) and FolderName (the literal storage prefix).
// FolderName is claimed once at first migration and never rewritten by
// pipeline code; the naming verifier is the only place divergence between
// the three is detected.
type Subject struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	SubjectKey  string `gorm:"column:subject_key;not null;uniqueIndex" json:"subject_key"`
	CanonicalID string `gorm:"column:canonical_id;index" json:"canonical_id"`
	DisplaySlug string `gorm:"column:display_slug;index" json:"display_slug"`
	DisplayName string `gorm:"column:display_name" json:"display_name"`
	FolderName  string `gorm:"column:folder_name;index" json:"folder_name"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Subject) TableName() string { return "subject" }

// Initials is the short prefix used in derived filenames. It is the folder
// name by convention; recomputing it from the display name would fork a
// subject's assets across two prefixes when the display name changes.
func (s *Subject) Initials() string {
	return s.FolderName
}
