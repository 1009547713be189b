package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

func TestPurgeDeletesUnreadableFiles(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()

	readable := filepath.Join(dir, "present.mkv")
	if err := os.WriteFile(readable, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "gone.mkv")

	a, _ := st.InsertFile(ctx, readable, 25, 10)
	b, _ := st.InsertFile(ctx, missing, 25, 10)

	reports, err := Purge(ctx, st, false)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(reports) != 1 || reports[0].Fid != b.Fid {
		t.Fatalf("expected only the missing file reported, got %+v", reports)
	}

	infos, _ := st.GetFileInfos(ctx)
	for _, fi := range infos {
		if fi.Fid == b.Fid {
			t.Error("expected missing file deleted")
		}
		if fi.Fid == a.Fid {
			t.Log("present file correctly retained")
		}
	}
}

func TestPurgeDryRunDoesNotDelete(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	missing := filepath.Join(t.TempDir(), "gone.mkv")
	fi, _ := st.InsertFile(ctx, missing, 25, 10)

	reports, err := Purge(ctx, st, true)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	infos, _ := st.GetFileInfos(ctx)
	found := false
	for _, f := range infos {
		if f.Fid == fi.Fid {
			found = true
		}
	}
	if !found {
		t.Error("dry-run purge must not delete")
	}
}

func TestRenameUpdatesStoredPath(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.mkv")
	newPath := filepath.Join(dir, "new.mkv")
	os.WriteFile(oldPath, []byte("x"), 0o644)

	fi, _ := st.InsertFile(ctx, oldPath, 25, 10)

	if err := Rename(ctx, st, oldPath, newPath); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	fid, ok, err := st.GetID(ctx, newPath)
	if err != nil || !ok || fid != fi.Fid {
		t.Errorf("expected new path resolved to fid %d, got fid=%d ok=%v err=%v", fi.Fid, fid, ok, err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("expected file moved on disk: %v", err)
	}
}

func TestRenameRefusesExistingDestination(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.mkv")
	newPath := filepath.Join(dir, "new.mkv")
	os.WriteFile(oldPath, []byte("x"), 0o644)
	os.WriteFile(newPath, []byte("y"), 0o644)
	st.InsertFile(ctx, oldPath, 25, 10)

	if err := Rename(ctx, st, oldPath, newPath); err == nil {
		t.Error("expected error when destination already exists")
	}
}

func TestFixMovedSkipsAmbiguousBasenames(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()

	st.InsertFile(ctx, "/old/a/dup.mkv", 25, 10)
	st.InsertFile(ctx, "/old/b/dup.mkv", 25, 10)
	unique, _ := st.InsertFile(ctx, "/old/unique.mkv", 25, 10)

	os.WriteFile(filepath.Join(dir, "dup.mkv"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "unique.mkv"), []byte("x"), 0o644)

	updated, err := FixMoved(ctx, st, dir, 0)
	if err != nil {
		t.Fatalf("FixMoved: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 update (unique.mkv only), got %d", updated)
	}

	fid, ok, _ := st.GetID(ctx, filepath.Join(dir, "unique.mkv"))
	if !ok || fid != unique.Fid {
		t.Errorf("expected unique.mkv resolved to fid %d", unique.Fid)
	}
	if _, ok, _ := st.GetID(ctx, filepath.Join(dir, "dup.mkv")); ok {
		t.Error("expected ambiguous dup.mkv not updated")
	}
}

func TestWhitelistInsertsAllPairwiseCombinations(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a, _ := st.InsertFile(ctx, "/a.mkv", 25, 10)
	b, _ := st.InsertFile(ctx, "/b.mkv", 25, 10)
	c, _ := st.InsertFile(ctx, "/c.mkv", 25, 10)

	report, err := Whitelist(ctx, st, []string{"/a.mkv", "/b.mkv", "/c.mkv", "/unknown.mkv"})
	if err != nil {
		t.Fatalf("Whitelist: %v", err)
	}
	if len(report.Unknown) != 1 || report.Unknown[0] != "/unknown.mkv" {
		t.Errorf("expected /unknown.mkv reported, got %v", report.Unknown)
	}

	for _, pair := range [][2]uint64{{a.Fid, b.Fid}, {a.Fid, c.Fid}, {b.Fid, c.Fid}} {
		wl, err := st.IsWhitelisted(ctx, pair[0], pair[1])
		if err != nil || !wl {
			t.Errorf("expected pair %v whitelisted, got %v err=%v", pair, wl, err)
		}
	}
}

func TestWhitelistRequiresAtLeastTwoPaths(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if _, err := Whitelist(ctx, st, []string{"/a.mkv"}); err == nil {
		t.Error("expected error for fewer than 2 paths")
	}
}

func TestMigrateBackfillsHashesFromBrightness(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	const fps = 25.0
	fi, _ := st.InsertFile(ctx, "/a.mkv", fps, 10)

	order := 250 // extrema.Order(25.0)
	n := order*2*4 + 1
	series := make([]float32, n)
	for p := order; p < n-order; p += order * 2 {
		series[p] = 100
	}
	st.InsertBrightness(ctx, fi.Fid, series)

	migrated, err := Migrate(ctx, st)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if migrated != 1 {
		t.Fatalf("expected 1 file migrated, got %d", migrated)
	}

	has, _ := st.HasHashes(ctx, fi.Fid)
	if !has {
		t.Error("expected hashes inserted after migrate")
	}
}

func TestMigrateSkipsFilesThatAlreadyHaveHashes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	fi, _ := st.InsertFile(ctx, "/a.mkv", 25, 10)
	st.InsertBrightness(ctx, fi.Fid, []float32{1, 2, 3})
	st.InsertHashes(ctx, fi.Fid, []vidtypes.HashEntry{{FrameIndex: 1, GapSeconds: 0.1}})

	migrated, err := Migrate(ctx, st)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if migrated != 0 {
		t.Errorf("expected 0 migrated for a file that already has hashes, got %d", migrated)
	}
}
