// Package window slices stored extrema into the fixed-width overlapping
// vectors that the ANN backends index and query.
package window

import (
	"context"
	"math"

	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// Config holds the tunables that shape window construction.
type Config struct {
	IndexLength   int     // L: window width in gap components.
	SceneLength   float64 // per-window time budget in seconds.
	IgnoreStart   float64 // seconds trimmed from the front of each file.
	IgnoreEnd     float64 // seconds trimmed from the back of each file.
	SpeedNormalize bool   // replace each window by 128*w/mean(w).
}

// Item is one emitted window: a fixed-width vector of gap components
// together with the file and anchor frame it was sliced from.
type Item struct {
	Vector   []float32
	FileInfo vidtypes.FileInfo
	Frame    uint32
}

// Build slices every file's stored extrema into overlapping windows,
// returning them in file-list order and, within a file, increasing
// window index — the ordering downstream tie-breaking relies on.
func Build(ctx context.Context, st store.Store, cfg Config) ([]Item, error) {
	infos, err := st.GetFileInfos(ctx)
	if err != nil {
		return nil, err
	}

	var out []Item
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		minFrame := uint32(math.Max(0, cfg.IgnoreStart*fi.FPS))
		maxFrame := uint32(math.Max(0, (fi.Duration-cfg.IgnoreEnd)*fi.FPS))
		if maxFrame <= minFrame {
			continue
		}

		frames, gaps, err := st.GetHashes(ctx, fi.Fid, minFrame, maxFrame)
		if err != nil {
			continue // a file whose hashes cannot be read is skipped; the error is not reported.
		}
		if len(gaps) < 5 {
			continue
		}

		itemCount := len(gaps) - cfg.IndexLength
		if itemCount < 0 {
			itemCount = 0
		}

		for k := 0; k < itemCount; k++ {
			raw := gaps[k : k+cfg.IndexLength]
			vec := clampToSceneLength(raw, cfg.SceneLength)
			if cfg.SpeedNormalize {
				var ok bool
				vec, ok = normalizeSpeed(vec)
				if !ok {
					continue // mean(w) == 0 is undefined; skip the window.
				}
			}
			out = append(out, Item{
				Vector:   vec,
				FileInfo: fi,
				Frame:    frames[k],
			})
		}
	}
	return out, nil
}

// clampToSceneLength walks raw left to right accumulating total_time
// against the UNTOUCHED input values. Once the running sum exceeds
// sceneLength, every remaining output position is zeroed; the prefix
// already observed is copied unchanged. The walk always reads the
// original gaps, never the zeroed output, so the clamp point depends
// only on the true elapsed time of the window.
func clampToSceneLength(raw []float32, sceneLength float64) []float32 {
	out := make([]float32, len(raw))
	var total float64
	truncated := false
	for i, v := range raw {
		if truncated {
			out[i] = 0
			continue
		}
		total += float64(v)
		if total > sceneLength {
			truncated = true
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}

// normalizeSpeed replaces w by 128*w/mean(w) element-wise. Reports ok=false
// when mean(w) == 0, in which case the result is undefined and the
// caller must skip the window.
func normalizeSpeed(w []float32) ([]float32, bool) {
	if len(w) == 0 {
		return w, false
	}
	var sum float64
	for _, v := range w {
		sum += float64(v)
	}
	mean := sum / float64(len(w))
	if mean == 0 {
		return nil, false
	}
	out := make([]float32, len(w))
	for i, v := range w {
		out[i] = float32(128 * float64(v) / mean)
	}
	return out, true
}
