package app

import (
	"gorm.io/gorm"

	repos "github.com/studiomoa/assetpipe/internal/data/repos/assets"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

type Repos struct {
	AssetRecords repos.AssetRecordRepo
	Subjects     repos.SubjectRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		AssetRecords: repos.NewAssetRecordRepo(db, log),
		Subjects:     repos.NewSubjectRepo(db, log),
	}
}
