package assets

import (
	"errors"

	"gorm.io/gorm"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

type SubjectRepo interface {
	Create(dbc dbctx.Context, rows []*types.Subject) ([]*types.Subject, error)

	GetByKey(dbc dbctx.Context, subjectKey string) (*types.Subject, error)
	GetByKeys(dbc dbctx.Context, subjectKeys []string) ([]*types.Subject, error)
	GetAll(dbc dbctx.Context) ([]*types.Subject, error)

	// ClaimFolderName assigns the physical folder for a subject exactly once.
	// A later call with a different folder returns the stored value untouched;
	// folder names are immutable after the first migration.
	ClaimFolderName(dbc dbctx.Context, subjectKey, folderName string) (string, error)
}

type subjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectRepo(db *gorm.DB, baseLog *logger.Logger) SubjectRepo {
	return &subjectRepo{db: db, log: baseLog.With("repo", "SubjectRepo")}
}

func (r *subjectRepo) Create(dbc dbctx.Context, rows []*types.Subject) ([]*types.Subject, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Subject{}, nil
	}
	if err := t.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *subjectRepo) GetByKey(dbc dbctx.Context, subjectKey string) (*types.Subject, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if subjectKey == "" {
		return nil, nil
	}
	var row types.Subject
	err := t.WithContext(dbc.Ctx).Where("subject_key = ?", subjectKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *subjectRepo) GetByKeys(dbc dbctx.Context, subjectKeys []string) ([]*types.Subject, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Subject
	if len(subjectKeys) == 0 {
		return out, nil
	}
	if err := t.WithContext(dbc.Ctx).Where("subject_key IN ?", subjectKeys).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subjectRepo) GetAll(dbc dbctx.Context) ([]*types.Subject, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var out []*types.Subject
	if err := t.WithContext(dbc.Ctx).Order("subject_key ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subjectRepo) ClaimFolderName(dbc dbctx.Context, subjectKey, folderName string) (string, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if subjectKey == "" || folderName == "" {
		return "", nil
	}
	if err := t.WithContext(dbc.Ctx).
		Model(&types.Subject{}).
		Where("subject_key = ? AND (folder_name IS NULL OR folder_name = '')", subjectKey).
		Update("folder_name", folderName).Error; err != nil {
		return "", err
	}
	row, err := r.GetByKey(dbc, subjectKey)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return row.FolderName, nil
}
