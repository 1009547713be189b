package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

func TestMemoryStoreInsertAndFetch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	fi, err := s.InsertFile(ctx, "/videos/a.mkv", 25, 30)
	if err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	if fi.Fid == 0 {
		t.Fatal("expected non-zero fid")
	}

	if err := s.InsertHashes(ctx, fi.Fid, []vidtypes.HashEntry{
		{FrameIndex: 10, GapSeconds: 0.4},
		{FrameIndex: 5, GapSeconds: 0.2}, // inserted out of order
	}); err != nil {
		t.Fatalf("InsertHashes: %v", err)
	}

	frames, gaps, err := s.GetHashes(ctx, fi.Fid, 0, 1000)
	if err != nil {
		t.Fatalf("GetHashes: %v", err)
	}
	if len(frames) != 2 || frames[0] != 5 || frames[1] != 10 {
		t.Errorf("expected sorted [5 10], got %v", frames)
	}
	if len(gaps) != 2 {
		t.Errorf("expected 2 gaps, got %d", len(gaps))
	}
}

func TestMemoryStoreWhitelistSymmetric(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.Whitelist(ctx, 7, 3); err != nil {
		t.Fatalf("Whitelist: %v", err)
	}
	a, err := s.IsWhitelisted(ctx, 3, 7)
	if err != nil || !a {
		t.Errorf("expected whitelisted(3,7)=true, got %v, err=%v", a, err)
	}
	b, err := s.IsWhitelisted(ctx, 7, 3)
	if err != nil || !b {
		t.Errorf("expected whitelisted(7,3)=true, got %v, err=%v", b, err)
	}
}

func TestMemoryStoreDelFileCascades(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	a, _ := s.InsertFile(ctx, "/a.mkv", 25, 10)
	b, _ := s.InsertFile(ctx, "/b.mkv", 25, 10)
	s.InsertHashes(ctx, a.Fid, []vidtypes.HashEntry{{FrameIndex: 1, GapSeconds: 0.1}})
	s.Whitelist(ctx, a.Fid, b.Fid)

	if err := s.DelFile(ctx, a.Fid); err != nil {
		t.Fatalf("DelFile: %v", err)
	}

	infos, _ := s.GetFileInfos(ctx)
	for _, fi := range infos {
		if fi.Fid == a.Fid {
			t.Error("expected deleted file to be gone from GetFileInfos")
		}
	}
	frames, _, _ := s.GetHashes(ctx, a.Fid, 0, 1000)
	if len(frames) != 0 {
		t.Error("expected hashes cascaded on delete")
	}
	wl, _ := s.IsWhitelisted(ctx, a.Fid, b.Fid)
	if wl {
		t.Error("expected whitelist row cascaded on delete")
	}
}

func TestMemoryStoreUpdateFileMetaAndClear(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	fi, _ := s.InsertFile(ctx, "/a.mkv", 25, 10)
	s.InsertBrightness(ctx, fi.Fid, []float32{1, 2, 3})
	s.InsertHashes(ctx, fi.Fid, []vidtypes.HashEntry{{FrameIndex: 1, GapSeconds: 0.1}})

	if err := s.UpdateFileMeta(ctx, fi.Fid, 30, 20); err != nil {
		t.Fatalf("UpdateFileMeta: %v", err)
	}
	infos, _ := s.GetFileInfos(ctx)
	if len(infos) != 1 || infos[0].FPS != 30 || infos[0].Duration != 20 {
		t.Errorf("expected updated fps/duration, got %+v", infos)
	}

	if err := s.ClearBrightness(ctx, fi.Fid); err != nil {
		t.Fatalf("ClearBrightness: %v", err)
	}
	series, _ := s.GetBrightness(ctx, fi.Fid)
	if len(series) != 0 {
		t.Errorf("expected brightness cleared, got %v", series)
	}

	if err := s.ClearHashes(ctx, fi.Fid); err != nil {
		t.Fatalf("ClearHashes: %v", err)
	}
	frames, _, _ := s.GetHashes(ctx, fi.Fid, 0, 1000)
	if len(frames) != 0 {
		t.Errorf("expected hashes cleared, got %v", frames)
	}
}

func TestMemoryStoreTryLockRejectsLiveLock(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if err := s.TryLock(ctx, "/a.mkv", time.Hour); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if err := s.TryLock(ctx, "/a.mkv", time.Hour); err != vidtypes.ErrAlreadyLocked {
		t.Errorf("expected ErrAlreadyLocked while the first lock is still live, got %v", err)
	}
}

func TestMemoryStoreTryLockSucceedsOnceExistingLockExpired(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// A lock whose own TTL already elapsed is expired, not held: the next
	// caller must succeed rather than see ErrAlreadyLocked.
	if err := s.TryLock(ctx, "/a.mkv", -time.Second); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if err := s.TryLock(ctx, "/a.mkv", time.Hour); err != nil {
		t.Errorf("expected TryLock to succeed once the existing lock expired, got %v", err)
	}
}
