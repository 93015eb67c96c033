// Package reconcile recomputes the ground-truth usage references for stored
// assets. The union of every registered usage source is authoritative; the
// cached refs on the record are rewritten only when they differ.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/datatypes"

	repos "github.com/studiomoa/assetpipe/internal/data/repos/assets"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

// UsageSource is one external system (pages, posts, campaigns) that can
// reference an asset by URL.
type UsageSource interface {
	Name() string
	ScanReferences(ctx context.Context, assetURL string) ([]types.UsageRef, error)
}

// Result is the per-asset outcome of one reconciliation pass.
type Result struct {
	AssetURL string `json:"asset_url"`
	OldCount int    `json:"old_count"`
	NewCount int    `json:"new_count"`
	Changed  bool   `json:"changed"`
	// Incomplete means at least one source failed to scan. The cached refs
	// were retained as a lower bound and the record was flagged; an
	// incomplete scan never asserts an empty ground truth.
	Incomplete    bool     `json:"incomplete,omitempty"`
	FailedSources []string `json:"failed_sources,omitempty"`
}

type Reconciler struct {
	log     *logger.Logger
	records repos.AssetRecordRepo
	sources []UsageSource
}

func NewReconciler(log *logger.Logger, records repos.AssetRecordRepo, sources []UsageSource) *Reconciler {
	return &Reconciler{
		log:     log.With("service", "UsageReconciler"),
		records: records,
		sources: sources,
	}
}

// Reconcile scans every registered source for each URL and rewrites the
// cached refs when the ground truth differs. URLs with no record are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, assetURLs []string) ([]Result, error) {
	if len(r.sources) == 0 {
		// With no sources every record would reconcile to an empty ground
		// truth, wiping real usage data. Refuse instead.
		return nil, fmt.Errorf("no usage sources registered")
	}
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := r.records.GetByURLs(dbc, assetURLs)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	byURL := make(map[string]*types.AssetRecord, len(rows))
	for _, row := range rows {
		byURL[row.AssetURL] = row
	}

	results := make([]Result, 0, len(assetURLs))
	for _, assetURL := range assetURLs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		row, ok := byURL[assetURL]
		if !ok {
			r.log.Warn("no record for asset url; skipping", "asset_url", assetURL)
			continue
		}
		res, err := r.reconcileOne(dbc, row)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ReconcileAll runs Reconcile over every known record.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Result, error) {
	urls, err := r.records.ListURLs(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("list asset urls: %w", err)
	}
	sort.Strings(urls)
	return r.Reconcile(ctx, urls)
}

func (r *Reconciler) reconcileOne(dbc dbctx.Context, row *types.AssetRecord) (Result, error) {
	res := Result{AssetURL: row.AssetURL, OldCount: row.UsageCount}

	truth := []types.UsageRef{}
	for _, src := range r.sources {
		refs, err := src.ScanReferences(dbc.Ctx, row.AssetURL)
		if err != nil {
			r.log.Warn("usage source scan failed",
				"source", src.Name(), "asset_url", row.AssetURL, "error", err)
			res.Incomplete = true
			res.FailedSources = append(res.FailedSources, src.Name())
			continue
		}
		truth = append(truth, refs...)
	}
	sortRefs(truth)

	if res.Incomplete {
		// A partial scan is a lower bound, never ground truth. Keep the cached
		// refs and only flag the record.
		res.NewCount = row.UsageCount
		if !row.ReconciliationIncomplete {
			if err := r.records.UpdateFieldsByURL(dbc, row.AssetURL, map[string]interface{}{
				"reconciliation_incomplete": true,
			}); err != nil {
				return res, fmt.Errorf("flag incomplete reconciliation for %q: %w", row.AssetURL, err)
			}
			res.Changed = true
		}
		return res, nil
	}

	cached, err := row.DecodeUsageRefs()
	if err != nil {
		return res, fmt.Errorf("decode cached refs for %q: %w", row.AssetURL, err)
	}
	sortRefs(cached)

	res.NewCount = len(truth)
	if refsEqual(cached, truth) && row.UsageCount == len(truth) && !row.ReconciliationIncomplete {
		return res, nil
	}

	raw, err := json.Marshal(truth)
	if err != nil {
		return res, fmt.Errorf("encode refs for %q: %w", row.AssetURL, err)
	}
	if err := r.records.UpdateFieldsByURL(dbc, row.AssetURL, map[string]interface{}{
		"usage_refs":                datatypes.JSON(raw),
		"usage_count":               len(truth),
		"reconciliation_incomplete": false,
	}); err != nil {
		return res, fmt.Errorf("write refs for %q: %w", row.AssetURL, err)
	}
	res.Changed = true
	return res, nil
}

func sortRefs(refs []types.UsageRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].EntityType != refs[j].EntityType {
			return refs[i].EntityType < refs[j].EntityType
		}
		return refs[i].EntityID < refs[j].EntityID
	})
}

func refsEqual(a, b []types.UsageRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
