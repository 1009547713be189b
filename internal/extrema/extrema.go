// Package extrema converts a brightness series into the
// (frame_index, seconds_since_previous_extremum) pairs that make up a
// file's perceptual fingerprint. This, together with the window
// builder, is the core signal-processing logic of viddup.
package extrema

import (
	"math"

	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// IndexDist is the fixed extremum-window time constant.
const IndexDist = 10 // seconds

// Order returns the local-max comparison radius in frames for a given
// fps: round(IndexDist * fps).
func Order(fps float64) int {
	return int(math.Round(IndexDist * fps))
}

// Detect normalizes flat runs, finds strict local maxima, and projects
// them into gap-encoded hash entries. fps must be > 0.
func Detect(brightness []float32, fps float64) []vidtypes.HashEntry {
	order := Order(fps)
	if order <= 0 || len(brightness) <= 2*order {
		return nil
	}

	norm := normalizeFlatRuns(brightness)

	var extremaFrames []int
	n := len(norm)
	for i := order; i < n-order; i++ {
		if isLocalMax(norm, i, order) {
			extremaFrames = append(extremaFrames, i)
		}
	}

	return projectGaps(extremaFrames, fps)
}

// normalizeFlatRuns returns a copy of brightness where, for every index
// i>0 with brightness[i] == brightness[i-1], the value is zeroed. This
// preserves exactly one representative of any run of equal consecutive
// values so the local-max predicate sees isolated peaks, not plateaus.
// Always applied unconditionally before extremum detection, never as a
// conditional code path.
func normalizeFlatRuns(brightness []float32) []float32 {
	out := make([]float32, len(brightness))
	copy(out, brightness)
	for i := 1; i < len(out); i++ {
		if brightness[i] == brightness[i-1] {
			out[i] = 0
		}
	}
	return out
}

// isLocalMax reports whether brightness[i] strictly exceeds every
// other sample in the symmetric window [i-order, i+order].
func isLocalMax(brightness []float32, i, order int) bool {
	v := brightness[i]
	for j := i - order; j <= i+order; j++ {
		if j == i {
			continue
		}
		if brightness[j] >= v {
			return false
		}
	}
	return true
}

// projectGaps converts a sorted list of extremum frame indices into
// hash entries: the first entry's gap is frameIndex/fps, every
// subsequent one is (frameIndex-previous)/fps.
func projectGaps(frames []int, fps float64) []vidtypes.HashEntry {
	if len(frames) == 0 {
		return nil
	}
	entries := make([]vidtypes.HashEntry, len(frames))
	prev := 0
	for i, f := range frames {
		gap := float64(f-prev) / fps
		if i == 0 {
			gap = float64(f) / fps
		}
		entries[i] = vidtypes.HashEntry{
			FrameIndex: uint32(f),
			GapSeconds: float32(gap),
		}
		prev = f
	}
	return entries
}
