package pathing

import (
	"fmt"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
)

// Planner assigns sequence numbers within (subject, category) buckets. It is
// a single-threaded pre-pass: callers feed it candidates in deterministic
// order (original-filename sort) before any task is dispatched, so worker
// completion order can never influence the assigned numbers.
//
// Seeded numbers (from already-migrated records) and claimed numbers (this
// batch) are tracked separately. An explicit filename ordinal may land on a
// seeded number: that is the idempotent re-run case, and the rebuilt path
// must equal the previous run's path so the duplicate check can skip it. It
// may never land on a number another task in the same batch claimed.
type Planner struct {
	seeded  map[string]map[int]bool
	claimed map[string]map[int]bool
}

func NewPlanner() *Planner {
	return &Planner{
		seeded:  map[string]map[int]bool{},
		claimed: map[string]map[int]bool{},
	}
}

func bucketKey(subjectKey string, category types.Category) string {
	return fmt.Sprintf("%s/%s", subjectKey, category)
}

// Seed marks a sequence number as held by an existing migrated record, so
// fresh allocations never reuse a live ordinal.
func (p *Planner) Seed(subjectKey string, category types.Category, sequence int) {
	if sequence <= 0 {
		return
	}
	key := bucketKey(subjectKey, category)
	if p.seeded[key] == nil {
		p.seeded[key] = map[int]bool{}
	}
	p.seeded[key][sequence] = true
}

// Assign claims a sequence number for one task. An explicit ordinal from the
// filename is honored unless another task in this batch already claimed it;
// then it bumps to the next number free of both batch claims and seeds. A
// task without an explicit ordinal takes the lowest such free number.
func (p *Planner) Assign(subjectKey string, category types.Category, explicit int) int {
	key := bucketKey(subjectKey, category)
	if p.claimed[key] == nil {
		p.claimed[key] = map[int]bool{}
	}

	if explicit > 0 && !p.claimed[key][explicit] {
		p.claimed[key][explicit] = true
		return explicit
	}

	start := explicit + 1
	if start < 1 {
		start = 1
	}
	for n := start; ; n++ {
		if !p.claimed[key][n] && !p.seeded[key][n] {
			p.claimed[key][n] = true
			return n
		}
	}
}

// Seeded reports whether a sequence number is held by an existing record.
func (p *Planner) Seeded(subjectKey string, category types.Category, sequence int) bool {
	return p.seeded[bucketKey(subjectKey, category)][sequence]
}
