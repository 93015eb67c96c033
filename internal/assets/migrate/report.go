package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Outcome classifies the end state of one task.
type Outcome string

const (
	OutcomeMigrated         Outcome = "migrated"
	OutcomeSkippedDuplicate Outcome = "skipped-duplicate"
	OutcomeDeletedNonMedia  Outcome = "deleted-non-media"
	OutcomeUnclassified     Outcome = "unclassified"
	OutcomeOrphanRecord     Outcome = "orphan-record"
	OutcomeFailed           Outcome = "failed"
)

// ItemResult is the per-task line in the run report.
type ItemResult struct {
	Task       Task    `json:"task"`
	Outcome    Outcome `json:"outcome"`
	TargetPath string  `json:"target_path,omitempty"`
	AssetURL   string  `json:"asset_url,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Summary aggregates outcomes.
type Summary struct {
	Total            int `json:"total"`
	Migrated         int `json:"migrated"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	DeletedNonMedia  int `json:"deleted_non_media"`
	Unclassified     int `json:"unclassified"`
	OrphanRecords    int `json:"orphan_records"`
	Failed           int `json:"failed"`
}

// RunReport is the structured audit document a batch always produces, even
// when every item failed.
type RunReport struct {
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    Summary    `json:"summary"`
	Items      []ItemResult `json:"items"`
}

// Finalize computes the summary and top-level status. Zero successful items
// is itself a status, never swallowed.
func (r *RunReport) Finalize() {
	r.FinishedAt = time.Now().UTC()
	s := Summary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.Outcome {
		case OutcomeMigrated:
			s.Migrated++
		case OutcomeSkippedDuplicate:
			s.SkippedDuplicate++
		case OutcomeDeletedNonMedia:
			s.DeletedNonMedia++
		case OutcomeUnclassified:
			s.Unclassified++
		case OutcomeOrphanRecord:
			s.OrphanRecords++
		case OutcomeFailed:
			s.Failed++
		}
	}
	r.Summary = s

	switch {
	case s.Total == 0:
		r.Status = "completed-empty"
	case s.Migrated == 0 && s.SkippedDuplicate == 0 && s.DeletedNonMedia == 0 && s.OrphanRecords == 0:
		r.Status = "completed-no-progress"
	case s.Failed > 0 || s.Unclassified > 0:
		r.Status = "completed-with-issues"
	default:
		r.Status = "completed"
	}
}

// TasksForRetry derives the follow-up batch from this report: failed and
// unclassified items only. Retrying is report-driven, never a blind rescan.
func (r *RunReport) TasksForRetry() []Task {
	out := []Task{}
	for _, it := range r.Items {
		if it.Outcome == OutcomeFailed || it.Outcome == OutcomeUnclassified {
			out = append(out, it.Task)
		}
	}
	return out
}

// WriteFile persists the report as indented JSON.
func (r *RunReport) WriteFile(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// LoadReport reads a previously written report, typically to build a retry
// batch.
func LoadReport(path string) (*RunReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run report: %w", err)
	}
	var r RunReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parse run report: %w", err)
	}
	return &r, nil
}
