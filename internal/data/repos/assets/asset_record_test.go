package assets

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/studiomoa/assetpipe/internal/data/repos/testutil"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
)

func TestAssetRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewAssetRecordRepo(db, testutil.Logger(t))

	a1 := &types.AssetRecord{
		ID:                   uuid.New(),
		AssetURL:             "https://cdn.example.com/roots/kss/2023-10-24/kss_s6_signature_01.webp",
		StorageKey:           "roots/kss/2023-10-24/kss_s6_signature_01.webp",
		ContentHashPrimary:   "p1",
		ContentHashSecondary: "s1",
		SubjectKey:           "kss",
		Category:             string(types.CategorySignature),
		Scene:                6,
		OriginalFilename:     "kss_photo_사인01.png",
		DerivedFilename:      "kss_s6_signature_01.webp",
		Format:               "webp",
	}
	if err := repo.UpsertByURL(dbc, a1); err != nil {
		t.Fatalf("UpsertByURL insert: %v", err)
	}

	// Upsert with the same URL must update, not duplicate.
	a1b := &types.AssetRecord{
		ID:                   uuid.New(),
		AssetURL:             a1.AssetURL,
		StorageKey:           a1.StorageKey,
		ContentHashPrimary:   "p1-new",
		ContentHashSecondary: "s1-new",
		SubjectKey:           "kss",
		Category:             string(types.CategorySignature),
		Scene:                6,
		Format:               "webp",
	}
	if err := repo.UpsertByURL(dbc, a1b); err != nil {
		t.Fatalf("UpsertByURL update: %v", err)
	}
	got, err := repo.GetByURL(dbc, a1.AssetURL)
	if err != nil || got == nil {
		t.Fatalf("GetByURL: got=%v err=%v", got, err)
	}
	if got.ContentHashPrimary != "p1-new" {
		t.Fatalf("upsert did not update hash: %q", got.ContentHashPrimary)
	}
	if rows, err := repo.GetBySubject(dbc, "kss"); err != nil || len(rows) != 1 {
		t.Fatalf("GetBySubject after double upsert: len=%d err=%v", len(rows), err)
	}

	if got, err := repo.GetByStorageKey(dbc, a1.StorageKey); err != nil || got == nil {
		t.Fatalf("GetByStorageKey: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByHashPair(dbc, "p1-new", "s1-new", "kss"); err != nil || got == nil {
		t.Fatalf("GetByHashPair: got=%v err=%v", got, err)
	}
	// A single-digest match is not a dedup hit.
	if got, err := repo.GetByHashPair(dbc, "p1-new", "other", "kss"); err != nil || got != nil {
		t.Fatalf("GetByHashPair partial match should miss: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByStorageKey(dbc, "roots/none"); err != nil || got != nil {
		t.Fatalf("GetByStorageKey miss: got=%v err=%v", got, err)
	}

	if urls, err := repo.ListURLs(dbc); err != nil || len(urls) != 1 {
		t.Fatalf("ListURLs: len=%d err=%v", len(urls), err)
	}

	if err := repo.UpdateFieldsByURL(dbc, a1.AssetURL, map[string]interface{}{"usage_count": 3}); err != nil {
		t.Fatalf("UpdateFieldsByURL: %v", err)
	}
	if got, err := repo.GetByURL(dbc, a1.AssetURL); err != nil || got == nil || got.UsageCount != 3 {
		t.Fatalf("UpdateFieldsByURL verify: got=%v err=%v", got, err)
	}
}
