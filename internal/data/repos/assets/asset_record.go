package assets

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

type AssetRecordRepo interface {
	// UpsertByURL inserts or updates the record keyed by asset_url. Re-running
	// a migration for an already-migrated file updates, never duplicates.
	UpsertByURL(dbc dbctx.Context, row *types.AssetRecord) error

	GetByURL(dbc dbctx.Context, assetURL string) (*types.AssetRecord, error)
	GetByURLs(dbc dbctx.Context, assetURLs []string) ([]*types.AssetRecord, error)
	GetByStorageKey(dbc dbctx.Context, storageKey string) (*types.AssetRecord, error)
	GetByHashPair(dbc dbctx.Context, hashPrimary, hashSecondary, subjectKey string) (*types.AssetRecord, error)
	GetBySubject(dbc dbctx.Context, subjectKey string) ([]*types.AssetRecord, error)
	ListURLs(dbc dbctx.Context) ([]string, error)

	UpdateFieldsByURL(dbc dbctx.Context, assetURL string, updates map[string]interface{}) error
}

type assetRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRecordRepo(db *gorm.DB, baseLog *logger.Logger) AssetRecordRepo {
	return &assetRecordRepo{db: db, log: baseLog.With("repo", "AssetRecordRepo")}
}

func (r *assetRecordRepo) UpsertByURL(dbc dbctx.Context, row *types.AssetRecord) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.AssetURL == "" {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return t.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asset_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"storage_key",
			"content_hash_primary",
			"content_hash_secondary",
			"subject_key",
			"category",
			"scene",
			"variant",
			"sequence",
			"original_filename",
			"derived_filename",
			"size_bytes",
			"format",
			"updated_at",
		}),
	}).Create(row).Error
}

func (r *assetRecordRepo) GetByURL(dbc dbctx.Context, assetURL string) (*types.AssetRecord, error) {
	if assetURL == "" {
		return nil, nil
	}
	rows, err := r.GetByURLs(dbc, []string{assetURL})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *assetRecordRepo) GetByURLs(dbc dbctx.Context, assetURLs []string) ([]*types.AssetRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.AssetRecord
	if len(assetURLs) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("asset_url IN ?", assetURLs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRecordRepo) GetByStorageKey(dbc dbctx.Context, storageKey string) (*types.AssetRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if storageKey == "" {
		return nil, nil
	}
	var row types.AssetRecord
	err := t.WithContext(dbc.Ctx).Where("storage_key = ?", storageKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *assetRecordRepo) GetByHashPair(dbc dbctx.Context, hashPrimary, hashSecondary, subjectKey string) (*types.AssetRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if hashPrimary == "" || hashSecondary == "" {
		return nil, nil
	}
	// Both digests must agree for a dedup hit; a single-algorithm match is
	// treated as no match.
	q := t.WithContext(dbc.Ctx).
		Where("content_hash_primary = ? AND content_hash_secondary = ?", hashPrimary, hashSecondary)
	if subjectKey != "" {
		q = q.Where("subject_key = ?", subjectKey)
	}
	var row types.AssetRecord
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *assetRecordRepo) GetBySubject(dbc dbctx.Context, subjectKey string) ([]*types.AssetRecord, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.AssetRecord
	if subjectKey == "" {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).
		Where("subject_key = ?", subjectKey).
		Order("storage_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRecordRepo) ListURLs(dbc dbctx.Context) ([]string, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []string
	if err := t.WithContext(dbc.Ctx).
		Model(&types.AssetRecord{}).
		Order("asset_url ASC").
		Pluck("asset_url", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRecordRepo) UpdateFieldsByURL(dbc dbctx.Context, assetURL string, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if assetURL == "" {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.AssetRecord{}).
		Where("asset_url = ?", assetURL).
		Updates(updates).Error
}
