package migrate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiomoa/assetpipe/internal/assets/classify"
	"github.com/studiomoa/assetpipe/internal/assets/pathing"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
	"github.com/studiomoa/assetpipe/internal/platform/gcp"
	"github.com/studiomoa/assetpipe/internal/platform/logger"
)

// ---- fakes ----

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// corruptOnUpload flips one byte of every uploaded payload, simulating a
	// store that silently mangles writes.
	corruptOnUpload bool
	unreadable      map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, unreadable: map[string]bool{}}
}

func (s *fakeStore) List(ctx context.Context, prefix string) ([]gcp.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []gcp.ObjectInfo{}
	for path, data := range s.objects {
		if len(prefix) == 0 || (len(path) >= len(prefix) && path[:len(prefix)] == prefix) {
			out = append(out, gcp.ObjectInfo{Path: path, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (s *fakeStore) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) Download(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unreadable[path] {
		return nil, fmt.Errorf("simulated read timeout for %q", path)
	}
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %q not found", path)
	}
	return data, nil
}

func (s *fakeStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	if s.corruptOnUpload && len(stored) > 0 {
		stored[0] ^= 0xff
	}
	s.objects[path] = stored
	return "https://cdn.test/" + path, nil
}

func (s *fakeStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

func (s *fakeStore) Attrs(ctx context.Context, path string) (*gcp.ObjectAttrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %q not found", path)
	}
	return &gcp.ObjectAttrs{Size: int64(len(data))}, nil
}

func (s *fakeStore) PublicURL(path string) string { return "https://cdn.test/" + path }

func (s *fakeStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

type fakeRecords struct {
	mu   sync.Mutex
	rows map[string]*types.AssetRecord // keyed by asset_url
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]*types.AssetRecord{}}
}

func (r *fakeRecords) UpsertByURL(dbc dbctx.Context, row *types.AssetRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *row
	r.rows[row.AssetURL] = &cp
	return nil
}

func (r *fakeRecords) GetByURL(dbc dbctx.Context, assetURL string) (*types.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[assetURL]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeRecords) GetByURLs(dbc dbctx.Context, assetURLs []string) ([]*types.AssetRecord, error) {
	out := []*types.AssetRecord{}
	for _, u := range assetURLs {
		row, _ := r.GetByURL(dbc, u)
		if row != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeRecords) GetByStorageKey(dbc dbctx.Context, storageKey string) (*types.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.StorageKey == storageKey {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRecords) GetByHashPair(dbc dbctx.Context, hashPrimary, hashSecondary, subjectKey string) (*types.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ContentHashPrimary == hashPrimary &&
			row.ContentHashSecondary == hashSecondary &&
			(subjectKey == "" || row.SubjectKey == subjectKey) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRecords) GetBySubject(dbc dbctx.Context, subjectKey string) ([]*types.AssetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.AssetRecord{}
	for _, row := range r.rows {
		if row.SubjectKey == subjectKey {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRecords) ListURLs(dbc dbctx.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for u := range r.rows {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeRecords) UpdateFieldsByURL(dbc dbctx.Context, assetURL string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[assetURL]
	if !ok {
		return nil
	}
	if v, ok := updates["category"]; ok {
		row.Category = v.(string)
	}
	if v, ok := updates["scene"]; ok {
		row.Scene = v.(int)
	}
	if v, ok := updates["variant"]; ok {
		row.Variant = v.(string)
	}
	if v, ok := updates["original_filename"]; ok {
		row.OriginalFilename = v.(string)
	}
	return nil
}

func (r *fakeRecords) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeSubjects struct {
	rows map[string]*types.Subject
}

func (f *fakeSubjects) Create(dbc dbctx.Context, rows []*types.Subject) ([]*types.Subject, error) {
	for _, row := range rows {
		f.rows[row.SubjectKey] = row
	}
	return rows, nil
}

func (f *fakeSubjects) GetByKey(dbc dbctx.Context, subjectKey string) (*types.Subject, error) {
	return f.rows[subjectKey], nil
}

func (f *fakeSubjects) GetByKeys(dbc dbctx.Context, subjectKeys []string) ([]*types.Subject, error) {
	out := []*types.Subject{}
	for _, k := range subjectKeys {
		if row, ok := f.rows[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSubjects) GetAll(dbc dbctx.Context) ([]*types.Subject, error) {
	out := []*types.Subject{}
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeSubjects) ClaimFolderName(dbc dbctx.Context, subjectKey, folderName string) (string, error) {
	row, ok := f.rows[subjectKey]
	if !ok {
		return "", nil
	}
	if row.FolderName == "" {
		row.FolderName = folderName
	}
	return row.FolderName, nil
}

type folderResolver struct{ subjects *fakeSubjects }

func (fr folderResolver) ResolveFolder(dbc dbctx.Context, subjectKey string) (string, error) {
	row := fr.subjects.rows[subjectKey]
	if row == nil {
		return "", fmt.Errorf("unknown subject %q", subjectKey)
	}
	if row.FolderName != "" {
		return row.FolderName, nil
	}
	return fr.subjects.ClaimFolderName(dbc, subjectKey, subjectKey)
}

type fakeTranscoder struct {
	fail bool
}

func (f *fakeTranscoder) Convert(ctx context.Context, data []byte, targetFormat string, quality int) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("simulated codec failure")
	}
	out := append([]byte(targetFormat+":"), data...)
	return out, nil
}

// ---- harness ----

type harness struct {
	store    *fakeStore
	records  *fakeRecords
	subjects *fakeSubjects
	codec    *fakeTranscoder
	exec     *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)

	store := newFakeStore()
	records := newFakeRecords()
	subjects := &fakeSubjects{rows: map[string]*types.Subject{
		"kss": {SubjectKey: "kss", CanonicalID: "kss-7942", DisplaySlug: "kss", DisplayName: "김세송", FolderName: "kss"},
	}}
	codec := &fakeTranscoder{}
	classifier := classify.New(classify.DefaultRuleSet())
	paths := pathing.NewBuilder(pathing.Config{Root: "roots"}, folderResolver{subjects: subjects})

	exec := NewExecutor(log, store, records, subjects, codec, classifier, paths, 80)
	return &harness{store: store, records: records, subjects: subjects, codec: codec, exec: exec}
}

func kssTasks() []Task {
	return []Task{
		{SourcePath: "incoming/kss/kss_photo_사인01.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "kss_photo_사인01.png", TargetFormat: "webp"},
		{SourcePath: "incoming/kss/kss_photo_시타영상03.mp4", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "kss_photo_시타영상03.mp4", TargetFormat: "webp"},
		{SourcePath: "incoming/kss/kss_photo_unmatched.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "kss_photo_unmatched.png", TargetFormat: "webp"},
	}
}

func seedKssSources(h *harness) {
	h.store.objects["incoming/kss/kss_photo_사인01.png"] = []byte("signature-photo-bytes")
	h.store.objects["incoming/kss/kss_photo_시타영상03.mp4"] = []byte("swing-video-bytes")
	h.store.objects["incoming/kss/kss_photo_unmatched.png"] = []byte("mystery-bytes")
}

// ---- tests ----

func TestMigrateExampleScenario(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)

	report, err := h.exec.Migrate(context.Background(), kssTasks(), Options{Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Unclassified)
	assert.Equal(t, 0, report.Summary.Failed)

	// Image normalized to webp at the canonical path; video keeps its container.
	assert.True(t, h.store.has("roots/kss/2023-10-24/kss_s6_signature_01.webp"))
	assert.True(t, h.store.has("roots/kss/2023-10-24/kss_s3_swing-video_03.mp4"))

	// Migrated sources are gone; the unclassified source is left for triage.
	assert.False(t, h.store.has("incoming/kss/kss_photo_사인01.png"))
	assert.False(t, h.store.has("incoming/kss/kss_photo_시타영상03.mp4"))
	assert.True(t, h.store.has("incoming/kss/kss_photo_unmatched.png"))

	assert.Equal(t, 2, h.records.count())
	rec, err := h.records.GetByStorageKey(dbctx.Context{}, "roots/kss/2023-10-24/kss_s6_signature_01.webp")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, string(types.CategorySignature), rec.Category)
	assert.Equal(t, 6, rec.Scene)
	assert.Equal(t, 1, rec.Sequence)
	assert.Equal(t, "kss_s6_signature_01.webp", rec.DerivedFilename)
	assert.Equal(t, "webp", rec.Format)
	assert.NotEmpty(t, rec.ContentHashPrimary)
	assert.NotEmpty(t, rec.ContentHashSecondary)
}

func TestMigrateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)

	first, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, first.Summary.Migrated)
	recordsAfterFirst := h.records.count()

	second, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, second.Summary.Migrated)
	assert.Equal(t, 2, second.Summary.SkippedDuplicate)
	assert.Equal(t, 1, second.Summary.Unclassified)
	assert.Equal(t, 0, second.Summary.Failed)
	assert.Equal(t, recordsAfterFirst, h.records.count(), "re-run must not create records")
	assert.True(t, h.store.has("roots/kss/2023-10-24/kss_s6_signature_01.webp"))
}

func TestMigrateSourceUnreadableDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)
	h.store.unreadable["incoming/kss/kss_photo_사인01.png"] = true

	report, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.Unclassified)
}

func TestMigrateDeletesNonMediaByPolicy(t *testing.T) {
	h := newHarness(t)
	h.store.objects["incoming/kss/contract.pdf"] = []byte("%PDF-1.4")

	report, err := h.exec.Migrate(context.Background(), []Task{
		{SourcePath: "incoming/kss/contract.pdf", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "contract.pdf", TargetFormat: "webp"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.DeletedNonMedia)
	assert.False(t, h.store.has("incoming/kss/contract.pdf"))
	assert.Equal(t, 0, h.records.count())
}

func TestMigrateTranscodeFailureIsTaskFailure(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)
	h.codec.fail = true

	report, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)

	// The png needs transcoding and fails; the mp4 keeps its container and
	// migrates untouched.
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Migrated)
}

func TestMigrateWriteVerificationMismatch(t *testing.T) {
	h := newHarness(t)
	h.store.objects["incoming/kss/김세송_시타영상07.mp4"] = []byte("video-bytes")
	h.store.corruptOnUpload = true

	report, err := h.exec.Migrate(context.Background(), []Task{
		{SourcePath: "incoming/kss/김세송_시타영상07.mp4", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "김세송_시타영상07.mp4", TargetFormat: "webp"},
	}, Options{})
	require.NoError(t, err)

	require.Equal(t, 1, report.Summary.Failed)
	assert.Contains(t, report.Items[0].Reason, "write verification mismatch")
	// The upsert must not happen and the source must survive for re-runs.
	assert.Equal(t, 0, h.records.count())
	assert.True(t, h.store.has("incoming/kss/김세송_시타영상07.mp4"))
}

func TestMigrateHealsOrphanRecord(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)

	first, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, first.Summary.Migrated)

	// Someone manually deletes a target object; its record remains.
	target := "roots/kss/2023-10-24/kss_s6_signature_01.webp"
	require.NoError(t, h.store.Delete(context.Background(), target))

	// Re-seed the source and re-run.
	h.store.objects["incoming/kss/kss_photo_사인01.png"] = []byte("signature-photo-bytes")
	second, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, second.Summary.OrphanRecords)
	assert.True(t, h.store.has(target), "orphan record must be healed by re-upload")
}

func TestMigrateHashPairDedupAcrossNames(t *testing.T) {
	h := newHarness(t)
	h.store.objects["incoming/kss/김세송_사인01.png"] = []byte("identical-bytes")
	h.store.objects["incoming/kss/김세송_사인02.png"] = []byte("identical-bytes")

	report, err := h.exec.Migrate(context.Background(), []Task{
		{SourcePath: "incoming/kss/김세송_사인01.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "김세송_사인01.png", TargetFormat: "webp"},
		{SourcePath: "incoming/kss/김세송_사인02.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "김세송_사인02.png", TargetFormat: "webp"},
	}, Options{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.Migrated)
	assert.Equal(t, 1, report.Summary.SkippedDuplicate)
	assert.Equal(t, 1, h.records.count())
}

func TestPlanOrderIndependentSequences(t *testing.T) {
	h := newHarness(t)
	h.store.objects["incoming/kss/김세송_사인_a.png"] = []byte("bytes-a")
	h.store.objects["incoming/kss/김세송_사인_b.png"] = []byte("bytes-b")

	tasks := []Task{
		{SourcePath: "incoming/kss/김세송_사인_b.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "김세송_사인_b.png", TargetFormat: "webp"},
		{SourcePath: "incoming/kss/김세송_사인_a.png", SubjectKey: "kss", PartitionKey: "2023-10-24", OriginalFilename: "김세송_사인_a.png", TargetFormat: "webp"},
	}
	report, err := h.exec.Migrate(context.Background(), tasks, Options{Concurrency: 2})
	require.NoError(t, err)
	require.Equal(t, 2, report.Summary.Migrated)

	// Sorted by original filename: _a gets 01, _b gets 02, regardless of the
	// submission or completion order.
	recA, err := h.records.GetByStorageKey(dbctx.Context{}, "roots/kss/2023-10-24/kss_s6_signature_01.webp")
	require.NoError(t, err)
	require.NotNil(t, recA)
	assert.Equal(t, "김세송_사인_a.png", recA.OriginalFilename)

	recB, err := h.records.GetByStorageKey(dbctx.Context{}, "roots/kss/2023-10-24/kss_s6_signature_02.webp")
	require.NoError(t, err)
	require.NotNil(t, recB)
	assert.Equal(t, "김세송_사인_b.png", recB.OriginalFilename)
}

func TestReportRetryDerivation(t *testing.T) {
	h := newHarness(t)
	seedKssSources(h)
	h.store.unreadable["incoming/kss/kss_photo_사인01.png"] = true

	report, err := h.exec.Migrate(context.Background(), kssTasks(), Options{})
	require.NoError(t, err)

	retry := report.TasksForRetry()
	require.Len(t, retry, 2, "failed + unclassified, never the migrated item")

	path := t.TempDir() + "/report.json"
	require.NoError(t, report.WriteFile(path))
	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, report.Summary, loaded.Summary)
	assert.Len(t, loaded.TasksForRetry(), 2)
}

func TestMigrateEmptyBatchStatus(t *testing.T) {
	h := newHarness(t)
	report, err := h.exec.Migrate(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "completed-empty", report.Status)
}
