package assets

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UsageRef is one entity (page, post, campaign) referencing an asset by URL.
type UsageRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Title      string `json:"title,omitempty"`
}

// AssetRecord is the metadata row for one distinct stored file. AssetURL is
// the upsert key: re-migrating an already-migrated file updates this row, it
// never duplicates it.
type AssetRecord struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	AssetURL   string `gorm:"column:asset_url;not null;uniqueIndex" json:"asset_url"`
	StorageKey string `gorm:"column:storage_key;not null;index" json:"storage_key"`

	ContentHashPrimary   string `gorm:"column:content_hash_primary;index" json:"content_hash_primary"`
	ContentHashSecondary string `gorm:"column:content_hash_secondary;index" json:"content_hash_secondary"`

	SubjectKey string `gorm:"column:subject_key;index" json:"subject_key,omitempty"`

	Category string `gorm:"column:category;index" json:"category"`
	Scene    int    `gorm:"column:scene" json:"scene,omitempty"`
	Variant  string `gorm:"column:variant" json:"variant,omitempty"`
	Sequence int    `gorm:"column:sequence" json:"sequence,omitempty"`

	OriginalFilename string `gorm:"column:original_filename" json:"original_filename"`
	DerivedFilename  string `gorm:"column:derived_filename" json:"derived_filename"`

	UsageRefs  datatypes.JSON `gorm:"column:usage_refs;type:jsonb" json:"usage_refs"`
	UsageCount int            `gorm:"column:usage_count;not null;default:0" json:"usage_count"`
	// ReconciliationIncomplete is set when the last usage scan could not reach
	// every source; the cached refs are then a lower bound, not ground truth.
	ReconciliationIncomplete bool `gorm:"column:reconciliation_incomplete;not null;default:false" json:"reconciliation_incomplete"`

	SizeBytes int64  `gorm:"column:size_bytes" json:"size_bytes"`
	Format    string `gorm:"column:format" json:"format"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AssetRecord) TableName() string { return "asset_record" }

// Classification rebuilds the typed tag from the stored columns.
func (a *AssetRecord) Classification() Classification {
	return Classification{Category: Category(a.Category), Scene: a.Scene, Variant: a.Variant}
}

// DecodeUsageRefs unmarshals the cached refs; a nil column decodes to an
// empty list.
func (a *AssetRecord) DecodeUsageRefs() ([]UsageRef, error) {
	if len(a.UsageRefs) == 0 {
		return []UsageRef{}, nil
	}
	var out []UsageRef
	if err := json.Unmarshal(a.UsageRefs, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []UsageRef{}
	}
	return out, nil
}

// EncodeUsageRefs stores refs and keeps UsageCount derived from their length.
func (a *AssetRecord) EncodeUsageRefs(refs []UsageRef) error {
	if refs == nil {
		refs = []UsageRef{}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	a.UsageRefs = datatypes.JSON(raw)
	a.UsageCount = len(refs)
	return nil
}
