package app

import (
	"fmt"

	"github.com/studiomoa/assetpipe/internal/assets/classify"
	"github.com/studiomoa/assetpipe/internal/assets/migrate"
	"github.com/studiomoa/assetpipe/internal/assets/pathing"
	"github.com/studiomoa/assetpipe/internal/assets/reconcile"
	"github.com/studiomoa/assetpipe/internal/assets/verify"
	"github.com/studiomoa/assetpipe/internal/config"
	repos "github.com/studiomoa/assetpipe/internal/data/repos/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	"github.com/studiomoa/assetpipe/internal/platform/gcp"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
	"github.com/studiomoa/assetpipe/internal/platform/transcode"
)

type Services struct {
	Classifier *classify.Classifier
	Paths      *pathing.Builder
	Executor   *migrate.Executor
	Reconciler *reconcile.Reconciler
	Verifier   *verify.Verifier
}

func wireServices(
	log *logger.Logger,
	cfg config.Config,
	store gcp.Store,
	transcoder transcode.Transcoder,
	reposet Repos,
	usageSources []reconcile.UsageSource,
) Services {
	classifier := classify.New(cfg.Classify)
	paths := pathing.NewBuilder(cfg.Pathing, &subjectFolderResolver{subjects: reposet.Subjects})

	return Services{
		Classifier: classifier,
		Paths:      paths,
		Executor: migrate.NewExecutor(
			log, store, reposet.AssetRecords, reposet.Subjects,
			transcoder, classifier, paths, cfg.Migration.Quality,
		),
		Reconciler: reconcile.NewReconciler(log, reposet.AssetRecords, usageSources),
		Verifier:   verify.NewVerifier(log, reposet.Subjects, store, cfg.Pathing.Root),
	}
}

// subjectFolderResolver backs the path builder with the subject table. The
// stored folder name wins; a subject without one gets the name derived from
// its canonical identifier, claimed exactly once.
type subjectFolderResolver struct {
	subjects repos.SubjectRepo
}

func (r *subjectFolderResolver) ResolveFolder(dbc dbctx.Context, subjectKey string) (string, error) {
	subject, err := r.subjects.GetByKey(dbc, subjectKey)
	if err != nil {
		return "", err
	}
	if subject == nil {
		return "", fmt.Errorf("unknown subject %q", subjectKey)
	}
	if subject.FolderName != "" {
		return subject.FolderName, nil
	}
	derived := pathing.FolderFromCanonicalID(subject.CanonicalID)
	if derived == "" {
		return "", fmt.Errorf("subject %q has no canonical identifier to derive a folder from", subjectKey)
	}
	return r.subjects.ClaimFolderName(dbc, subjectKey, derived)
}
