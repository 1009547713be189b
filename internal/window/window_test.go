package window

import (
	"context"
	"testing"

	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// TestSceneLengthClampUsesOriginalGaps pins the clamp's running-total
// semantics: the total that decides where to truncate is computed from
// the untouched input gaps, never from the partially-zeroed output.
func TestSceneLengthClampUsesOriginalGaps(t *testing.T) {
	raw := []float32{10, 10, 10, 10, 10} // total=50, budget=25
	out := clampToSceneLength(raw, 25)

	want := []float32{10, 10, 0, 0, 0}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: got %v want %v", i, out[i], want[i])
		}
	}

	// The prefix strictly before the clamp must be byte-identical to raw,
	// confirming the walk never substitutes a zeroed value into its own
	// running sum.
	for i := 0; i < 2; i++ {
		if out[i] != raw[i] {
			t.Errorf("prefix index %d mutated: got %v want %v", i, out[i], raw[i])
		}
	}
}

func TestClampToSceneLengthNoTruncationNeeded(t *testing.T) {
	raw := []float32{1, 1, 1, 1, 1}
	out := clampToSceneLength(raw, 300)
	for i := range raw {
		if out[i] != raw[i] {
			t.Errorf("index %d: expected untouched %v, got %v", i, raw[i], out[i])
		}
	}
}

func TestNormalizeSpeedZeroMeanSkipped(t *testing.T) {
	_, ok := normalizeSpeed([]float32{0, 0, 0})
	if ok {
		t.Error("expected ok=false for zero-mean window")
	}
}

func TestNormalizeSpeedScalesToMean128(t *testing.T) {
	w := []float32{1, 2, 3}
	out, ok := normalizeSpeed(w)
	if !ok {
		t.Fatal("expected ok=true")
	}
	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	mean := sum / float64(len(out))
	if mean < 127.9 || mean > 128.1 {
		t.Errorf("expected normalized mean ~128, got %v", mean)
	}
}

// TestBuildIgnoreBoundaries covers a 120s file with extrema at every 5s;
// ignore_start=30, ignore_end=30 must restrict windows to extrema drawn
// only from the [30,90) second range.
func TestBuildIgnoreBoundaries(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	const fps = 1.0
	fi, err := st.InsertFile(ctx, "/clip.mkv", fps, 120)
	if err != nil {
		t.Fatalf("InsertFile: %v", err)
	}

	var entries []vidtypes.HashEntry
	for s := 5; s <= 115; s += 5 {
		entries = append(entries, vidtypes.HashEntry{FrameIndex: uint32(s), GapSeconds: 5})
	}
	if err := st.InsertHashes(ctx, fi.Fid, entries); err != nil {
		t.Fatalf("InsertHashes: %v", err)
	}

	items, err := Build(ctx, st, Config{IndexLength: 3, SceneLength: 300, IgnoreStart: 30, IgnoreEnd: 30})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one window")
	}
	for _, it := range items {
		if it.Frame < 30 || it.Frame >= 90 {
			t.Errorf("anchor frame %d outside [30,90)", it.Frame)
		}
	}
}

func TestBuildSkipsFilesWithFewGaps(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	fi, _ := st.InsertFile(ctx, "/short.mkv", 25, 10)
	st.InsertHashes(ctx, fi.Fid, []vidtypes.HashEntry{
		{FrameIndex: 1, GapSeconds: 0.1},
		{FrameIndex: 2, GapSeconds: 0.1},
	})

	items, err := Build(ctx, st, Config{IndexLength: 3, SceneLength: 300})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no windows for a file with <5 gaps, got %d", len(items))
	}
}
