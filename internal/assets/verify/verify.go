// Package verify audits the three naming authorities of every subject: the
// canonical identifier, the display slug and the physical storage folder.
// The audit is read only. It reports drift and proposes fixes; it never
// renames, merges or deletes anything, because a wrong automatic merge of
// two subjects' folders cannot be undone.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/studiomoa/assetpipe/internal/assets/pathing"
	repos "github.com/studiomoa/assetpipe/internal/data/repos/assets"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	pkgerrors "github.com/studiomoa/assetpipe/internal/pkg/errors"
	"github.com/studiomoa/assetpipe/internal/platform/gcp"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

// SubjectStatus buckets are exclusive: every subject lands in exactly one.
type SubjectStatus string

const (
	StatusMatched           SubjectStatus = "matched"
	StatusMismatched        SubjectStatus = "mismatched"
	StatusMissingIdentifier SubjectStatus = "missing-identifier"
	StatusMissingSlug       SubjectStatus = "missing-slug"
	StatusMissingFolder     SubjectStatus = "missing-folder"
	StatusMultipleFolders   SubjectStatus = "multiple-folders"
)

// SubjectFinding is the audit verdict for one subject.
type SubjectFinding struct {
	SubjectKey     string        `json:"subject_key"`
	CanonicalID    string        `json:"canonical_id,omitempty"`
	DisplaySlug    string        `json:"display_slug,omitempty"`
	ExpectedFolder string        `json:"expected_folder,omitempty"`
	Status         SubjectStatus `json:"status"`
	// Folders are the physical folders whose normalized name equals the
	// expected folder. Empty for missing-folder, more than one for
	// multiple-folders.
	Folders  []string `json:"folders,omitempty"`
	Proposal string   `json:"proposal,omitempty"`
}

// FolderFinding is the verdict for one physical folder: claimed by exactly
// one subject, or orphan.
type FolderFinding struct {
	Folder      string   `json:"folder"`
	Claimed     bool     `json:"claimed"`
	SubjectKeys []string `json:"subject_keys,omitempty"`
}

type ConsistencyReport struct {
	Subjects []SubjectFinding `json:"subjects"`
	Folders  []FolderFinding  `json:"folders"`

	Counts  map[SubjectStatus]int `json:"counts"`
	Orphans int                   `json:"orphan_folders"`
}

// ConflictErr returns ErrNamingConflict when the audit found drift that a
// human has to resolve. Never used to trigger automatic remediation.
func (r *ConsistencyReport) ConflictErr() error {
	drift := r.Counts[StatusMismatched] + r.Counts[StatusMultipleFolders]
	if drift == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d subject(s) need manual review", pkgerrors.ErrNamingConflict, drift)
}

type Verifier struct {
	log      *logger.Logger
	subjects repos.SubjectRepo
	store    gcp.Store
	root     string
}

func NewVerifier(log *logger.Logger, subjects repos.SubjectRepo, store gcp.Store, root string) *Verifier {
	return &Verifier{
		log:      log.With("service", "NamingConsistencyVerifier"),
		subjects: subjects,
		store:    store,
		root:     strings.Trim(strings.TrimSpace(root), "/"),
	}
}

// Verify loads every subject and every physical folder under the root and
// cross-checks them.
func (v *Verifier) Verify(ctx context.Context) (*ConsistencyReport, error) {
	rows, err := v.subjects.GetAll(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	folders, err := v.store.ListFolders(ctx, v.root+"/")
	if err != nil {
		return nil, fmt.Errorf("list folders under %q: %w", v.root, err)
	}
	report := Check(rows, folders)
	v.log.Info("naming audit finished",
		"subjects", len(report.Subjects),
		"matched", report.Counts[StatusMatched],
		"mismatched", report.Counts[StatusMismatched],
		"multiple_folders", report.Counts[StatusMultipleFolders],
		"orphan_folders", report.Orphans,
	)
	return report, nil
}

// Check is the pure audit over a subject set and a physical folder list.
func Check(subjects []*types.Subject, physicalFolders []string) *ConsistencyReport {
	report := &ConsistencyReport{Counts: map[SubjectStatus]int{}}

	// Folder names are compared in normalized form so case and Unicode
	// composition differences surface as multiple-folders, not as misses.
	byNormalized := map[string][]string{}
	for _, folder := range physicalFolders {
		key := pathing.Slugify(folder)
		byNormalized[key] = append(byNormalized[key], folder)
	}

	claims := map[string][]string{}
	sorted := make([]*types.Subject, len(subjects))
	copy(sorted, subjects)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SubjectKey < sorted[j].SubjectKey })

	for _, s := range sorted {
		finding := classifySubject(s, byNormalized)
		report.Counts[finding.Status]++
		report.Subjects = append(report.Subjects, finding)

		for _, folder := range finding.Folders {
			claims[folder] = append(claims[folder], s.SubjectKey)
		}
	}

	sortedFolders := make([]string, len(physicalFolders))
	copy(sortedFolders, physicalFolders)
	sort.Strings(sortedFolders)
	for _, folder := range sortedFolders {
		keys := claims[folder]
		claimed := len(keys) == 1
		if !claimed {
			report.Orphans++
		}
		report.Folders = append(report.Folders, FolderFinding{
			Folder:      folder,
			Claimed:     claimed,
			SubjectKeys: keys,
		})
	}
	return report
}

func classifySubject(s *types.Subject, byNormalized map[string][]string) SubjectFinding {
	finding := SubjectFinding{
		SubjectKey:  s.SubjectKey,
		CanonicalID: s.CanonicalID,
		DisplaySlug: s.DisplaySlug,
	}

	if strings.TrimSpace(s.CanonicalID) == "" {
		finding.Status = StatusMissingIdentifier
		finding.Proposal = "assign a canonical identifier before migrating assets"
		return finding
	}
	if strings.TrimSpace(s.DisplaySlug) == "" {
		finding.Status = StatusMissingSlug
		finding.Proposal = "assign a display slug matching the canonical identifier"
		return finding
	}

	fromID := pathing.FolderFromCanonicalID(s.CanonicalID)
	fromSlug := pathing.FolderFromSlug(s.DisplaySlug)
	if fromID != fromSlug {
		finding.Status = StatusMismatched
		finding.Proposal = fmt.Sprintf(
			"identifier derives folder %q but slug derives %q; align them manually", fromID, fromSlug)
		return finding
	}
	finding.ExpectedFolder = fromID

	matches := byNormalized[fromID]
	switch len(matches) {
	case 0:
		finding.Status = StatusMissingFolder
		finding.Proposal = fmt.Sprintf("no physical folder for %q; first migration will claim it", fromID)
	case 1:
		finding.Status = StatusMatched
		finding.Folders = matches
	default:
		finding.Status = StatusMultipleFolders
		finding.Folders = append(finding.Folders, matches...)
		sort.Strings(finding.Folders)
		finding.Proposal = fmt.Sprintf(
			"%d folders normalize to %q; merge them manually after review", len(matches), fromID)
	}
	return finding
}
