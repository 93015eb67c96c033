// Package migrate orchestrates copy→verify→delete for batches of asset
// files against a live object store. Every step is idempotent: re-running a
// batch over an already-migrated source set produces skips, not duplicates.
package migrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studiomoa/assetpipe/internal/assets/classify"
	"github.com/studiomoa/assetpipe/internal/assets/identity"
	"github.com/studiomoa/assetpipe/internal/assets/pathing"
	repos "github.com/studiomoa/assetpipe/internal/data/repos/assets"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	pkgerrors "github.com/studiomoa/assetpipe/internal/pkg/errors"
	"github.com/studiomoa/assetpipe/internal/platform/gcp"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
	"github.com/studiomoa/assetpipe/internal/platform/transcode"
)

const defaultConcurrency = 4

type Executor struct {
	log        *logger.Logger
	store      gcp.Store
	records    repos.AssetRecordRepo
	subjects   repos.SubjectRepo
	transcoder transcode.Transcoder
	classifier *classify.Classifier
	paths      *pathing.Builder
	quality    int
}

func NewExecutor(
	log *logger.Logger,
	store gcp.Store,
	records repos.AssetRecordRepo,
	subjects repos.SubjectRepo,
	transcoder transcode.Transcoder,
	classifier *classify.Classifier,
	paths *pathing.Builder,
	quality int,
) *Executor {
	return &Executor{
		log:        log.With("service", "MigrationExecutor"),
		store:      store,
		records:    records,
		subjects:   subjects,
		transcoder: transcoder,
		classifier: classifier,
		paths:      paths,
		quality:    quality,
	}
}

// plannedTask is a task after the single-threaded planning pre-pass: the
// classification, sequence number and target path are fixed before any
// worker runs, so completion order cannot influence them.
type plannedTask struct {
	task         Task
	cls          types.Classification
	sequence     int
	targetPath   string
	targetFormat string
	nonMedia     bool
	unclassified bool
	planErr      error
}

// Migrate runs one batch. Per-task failures are isolated; the batch always
// completes and returns a full report.
func (e *Executor) Migrate(ctx context.Context, tasks []Task, opts Options) (*RunReport, error) {
	report := &RunReport{StartedAt: time.Now().UTC()}
	if len(tasks) == 0 {
		report.Finalize()
		return report, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	dbc := dbctx.Context{Ctx: ctx}
	planned, err := e.plan(dbc, tasks)
	if err != nil {
		return nil, err
	}

	results := make([]ItemResult, len(planned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, pt := range planned {
		i, pt := i, pt
		// Cooperative cancellation checkpoint: tasks not yet dispatched are
		// reported, never silently dropped. In-flight tasks run to completion.
		if gctx.Err() != nil {
			results[i] = ItemResult{
				Task:    pt.task,
				Outcome: OutcomeFailed,
				Reason:  "run canceled before dispatch",
			}
			continue
		}
		g.Go(func() error {
			results[i] = e.executeOne(gctx, pt, opts)
			return nil
		})
	}
	_ = g.Wait()

	report.Items = results
	report.Finalize()
	e.log.Info("migration batch finished",
		"status", report.Status,
		"total", report.Summary.Total,
		"migrated", report.Summary.Migrated,
		"skipped_duplicate", report.Summary.SkippedDuplicate,
		"deleted_non_media", report.Summary.DeletedNonMedia,
		"unclassified", report.Summary.Unclassified,
		"orphan_records", report.Summary.OrphanRecords,
		"failed", report.Summary.Failed,
	)
	return report, nil
}

// plan is the deterministic pre-pass: sort candidates by original filename,
// classify, seed the sequence planner from already-migrated records, and fix
// every target path before dispatch.
func (e *Executor) plan(dbc dbctx.Context, tasks []Task) ([]plannedTask, error) {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SubjectKey != sorted[j].SubjectKey {
			return sorted[i].SubjectKey < sorted[j].SubjectKey
		}
		return sorted[i].OriginalFilename < sorted[j].OriginalFilename
	})

	displayNames, err := e.displayNames(dbc, sorted)
	if err != nil {
		return nil, err
	}

	planner := pathing.NewPlanner()
	seededSubjects := map[string]bool{}
	planned := make([]plannedTask, 0, len(sorted))

	for _, task := range sorted {
		pt := plannedTask{task: task}

		sourceFormat := formatOf(task.OriginalFilename)
		if isNonMedia(sourceFormat) {
			pt.nonMedia = true
			planned = append(planned, pt)
			continue
		}

		cls, ok := e.classifier.Classify(task.OriginalFilename, displayNames[task.SubjectKey])
		if !ok {
			pt.unclassified = true
			planned = append(planned, pt)
			continue
		}
		pt.cls = cls

		if !seededSubjects[task.SubjectKey] {
			seededSubjects[task.SubjectKey] = true
			existing, err := e.records.GetBySubject(dbc, task.SubjectKey)
			if err != nil {
				return nil, fmt.Errorf("load existing records for %q: %w", task.SubjectKey, err)
			}
			for _, rec := range existing {
				planner.Seed(task.SubjectKey, types.Category(rec.Category), rec.Sequence)
			}
		}

		pt.targetFormat = targetFormatFor(task, sourceFormat)
		explicit := e.classifier.Sequence(task.OriginalFilename)
		pt.sequence = planner.Assign(task.SubjectKey, cls.Category, explicit)

		path, err := e.paths.BuildPath(dbc, task.SubjectKey, task.PartitionKey, cls, pt.sequence, pt.targetFormat)
		if err != nil {
			pt.planErr = err
		}
		pt.targetPath = path
		planned = append(planned, pt)
	}
	return planned, nil
}

func (e *Executor) displayNames(dbc dbctx.Context, tasks []Task) (map[string]string, error) {
	keySet := map[string]bool{}
	keys := []string{}
	for _, t := range tasks {
		if t.SubjectKey != "" && !keySet[t.SubjectKey] {
			keySet[t.SubjectKey] = true
			keys = append(keys, t.SubjectKey)
		}
	}
	rows, err := e.subjects.GetByKeys(dbc, keys)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	out := map[string]string{}
	for _, s := range rows {
		out[s.SubjectKey] = s.DisplayName
	}
	return out, nil
}

// targetFormatFor keeps video containers and normalizes raster images to the
// task's target format.
func targetFormatFor(task Task, sourceFormat string) string {
	if isVideo(sourceFormat) {
		return sourceFormat
	}
	target := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(task.TargetFormat), "."))
	if target == "" {
		return sourceFormat
	}
	return target
}

func (e *Executor) executeOne(ctx context.Context, pt plannedTask, opts Options) ItemResult {
	dbc := dbctx.Context{Ctx: ctx}
	task := pt.task

	if pt.nonMedia {
		if err := e.store.Delete(ctx, task.SourcePath); err != nil {
			return ItemResult{Task: task, Outcome: OutcomeFailed,
				Reason: fmt.Sprintf("delete non-media source: %v", err)}
		}
		e.log.Info("deleted non-media source", "source", task.SourcePath)
		return ItemResult{Task: task, Outcome: OutcomeDeletedNonMedia}
	}
	if pt.unclassified {
		return ItemResult{Task: task, Outcome: OutcomeUnclassified,
			Reason: "no classification pattern matched"}
	}
	if pt.planErr != nil {
		return ItemResult{Task: task, Outcome: OutcomeFailed,
			Reason: fmt.Sprintf("plan target path: %v", pt.planErr)}
	}

	// Dedup by target path comes before the source read: after a completed
	// first run the source is already deleted, and a re-run must still land
	// on skipped-duplicate. A record whose stored object vanished is an
	// orphan record: surfaced distinctly and healed by re-upload.
	orphanHealed := false
	if !opts.ForceOverwrite {
		existing, err := e.records.GetByStorageKey(dbc, pt.targetPath)
		if err != nil {
			return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
				Reason: fmt.Sprintf("path dedup lookup: %v", err)}
		}
		if existing != nil {
			if _, attrsErr := e.store.Attrs(ctx, pt.targetPath); attrsErr == nil {
				if err := e.refreshTags(dbc, existing.AssetURL, pt); err != nil {
					return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
						Reason: fmt.Sprintf("refresh tags: %v", err)}
				}
				e.deleteSourceBestEffort(ctx, task.SourcePath)
				return ItemResult{Task: task, Outcome: OutcomeSkippedDuplicate,
					TargetPath: pt.targetPath, AssetURL: existing.AssetURL,
					Reason: fmt.Sprintf("%v", pkgerrors.ErrTargetExists)}
			}
			e.log.Warn("asset record has no stored object; re-uploading",
				"target", pt.targetPath)
			orphanHealed = true
		}
	}

	payload, err := e.store.Download(ctx, task.SourcePath)
	if err != nil {
		return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
			Reason: fmt.Sprintf("%v: %v", pkgerrors.ErrSourceUnreadable, err)}
	}

	sourceFormat := formatOf(task.OriginalFilename)
	if sourceFormat != pt.targetFormat {
		converted, err := e.transcoder.Convert(ctx, payload, pt.targetFormat, e.quality)
		if err != nil {
			return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
				Reason: fmt.Sprintf("%v: %v", pkgerrors.ErrTranscodeFailed, err)}
		}
		payload = converted
	}

	fp := identity.Identify(payload)

	// Pre-write dedup by content: byte-identical payload already migrated for
	// this subject means no copy, only a tag refresh. Skipped when healing an
	// orphan record, whose own hashes would otherwise suppress the re-upload.
	if !opts.ForceOverwrite && !orphanHealed {
		existing, err := e.records.GetByHashPair(dbc, fp.Primary, fp.Secondary, task.SubjectKey)
		if err != nil {
			return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
				Reason: fmt.Sprintf("hash dedup lookup: %v", err)}
		}
		if existing != nil {
			if err := e.refreshTags(dbc, existing.AssetURL, pt); err != nil {
				return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: existing.StorageKey,
					Reason: fmt.Sprintf("refresh tags: %v", err)}
			}
			e.deleteSourceBestEffort(ctx, task.SourcePath)
			return ItemResult{Task: task, Outcome: OutcomeSkippedDuplicate,
				TargetPath: existing.StorageKey, AssetURL: existing.AssetURL,
				Reason: "byte-identical content already migrated"}
		}
	}

	assetURL, err := e.store.Upload(ctx, pt.targetPath, payload, gcp.ContentTypeForKey(pt.targetPath))
	if err != nil {
		return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
			Reason: fmt.Sprintf("upload: %v", err)}
	}

	// Verify the write by re-reading the target. A mismatch is an integrity
	// failure for manual review; it is never retried in-process, and the
	// metadata upsert must not happen.
	readBack, err := e.store.Download(ctx, pt.targetPath)
	if err != nil {
		return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
			Reason: fmt.Sprintf("verify read-back: %v", err)}
	}
	if !identity.Identify(readBack).Matches(fp) {
		return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
			Reason: pkgerrors.ErrWriteVerificationMismatch.Error()}
	}

	record := &types.AssetRecord{
		AssetURL:             assetURL,
		StorageKey:           pt.targetPath,
		ContentHashPrimary:   fp.Primary,
		ContentHashSecondary: fp.Secondary,
		SubjectKey:           task.SubjectKey,
		Category:             string(pt.cls.Category),
		Scene:                pt.cls.Scene,
		Variant:              pt.cls.Variant,
		Sequence:             pt.sequence,
		OriginalFilename:     task.OriginalFilename,
		DerivedFilename:      filepath.Base(pt.targetPath),
		SizeBytes:            int64(len(payload)),
		Format:               pt.targetFormat,
	}
	if err := e.records.UpsertByURL(dbc, record); err != nil {
		return ItemResult{Task: task, Outcome: OutcomeFailed, TargetPath: pt.targetPath,
			Reason: fmt.Sprintf("upsert record: %v", err)}
	}

	e.deleteSourceBestEffort(ctx, task.SourcePath)

	outcome := OutcomeMigrated
	if orphanHealed {
		outcome = OutcomeOrphanRecord
	}
	return ItemResult{Task: task, Outcome: outcome, TargetPath: pt.targetPath, AssetURL: assetURL}
}

func (e *Executor) refreshTags(dbc dbctx.Context, assetURL string, pt plannedTask) error {
	return e.records.UpdateFieldsByURL(dbc, assetURL, map[string]interface{}{
		"category":          string(pt.cls.Category),
		"scene":             pt.cls.Scene,
		"variant":           pt.cls.Variant,
		"original_filename": pt.task.OriginalFilename,
	})
}

// deleteSourceBestEffort removes the migrated source. The canonical copy
// already exists at the target, so a failed delete is a cleanup nuisance,
// not a task failure.
func (e *Executor) deleteSourceBestEffort(ctx context.Context, sourcePath string) {
	if sourcePath == "" {
		return
	}
	if err := e.store.Delete(ctx, sourcePath); err != nil {
		e.log.Warn("source delete failed; canonical copy is safe",
			"source", sourcePath, "error", err)
	}
}
