package assets

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/studiomoa/assetpipe/internal/data/repos/testutil"
	types "github.com/studiomoa/assetpipe/internal/domain/assets"
	"github.com/studiomoa/assetpipe/internal/pkg/dbctx"
)

func TestSubjectRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewSubjectRepo(db, testutil.Logger(t))

	s1 := &types.Subject{
		ID:          uuid.New(),
		SubjectKey:  "kss",
		CanonicalID: "kss-7942",
		DisplaySlug: "kss",
		DisplayName: "김세송",
	}
	s2 := &types.Subject{
		ID:          uuid.New(),
		SubjectKey:  "lsy",
		CanonicalID: "lsy-1010",
		DisplaySlug: "lsy",
		DisplayName: "이승연",
	}
	if _, err := repo.Create(dbc, []*types.Subject{s1, s2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if got, err := repo.GetByKey(dbc, "kss"); err != nil || got == nil || got.CanonicalID != "kss-7942" {
		t.Fatalf("GetByKey: got=%v err=%v", got, err)
	}
	if got, err := repo.GetByKeys(dbc, []string{"kss", "lsy"}); err != nil || len(got) != 2 {
		t.Fatalf("GetByKeys: len=%d err=%v", len(got), err)
	}
	if got, err := repo.GetAll(dbc); err != nil || len(got) != 2 {
		t.Fatalf("GetAll: len=%d err=%v", len(got), err)
	}

	folder, err := repo.ClaimFolderName(dbc, "kss", "kss")
	if err != nil || folder != "kss" {
		t.Fatalf("ClaimFolderName first claim: folder=%q err=%v", folder, err)
	}

	// A second claim with a different name must not move the folder.
	folder, err = repo.ClaimFolderName(dbc, "kss", "kimsesong")
	if err != nil || folder != "kss" {
		t.Fatalf("ClaimFolderName must be immutable: folder=%q err=%v", folder, err)
	}
}
