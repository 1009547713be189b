// Package search implements the deterministic clustering, whitelist
// filtering, and offset-projection driver that turns raw ANN query
// results into duplicate-scene groups.
package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Eierkopp/viddup/internal/ann"
	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
	"github.com/Eierkopp/viddup/internal/window"
)

// Detail is one file's occurrence within a duplicate-scene group.
type Detail struct {
	FileInfo vidtypes.FileInfo
	Offset   float64 // seconds into the file
}

// Group is a set of occurrences of the same scene across two or more
// files, ordered by first appearance.
type Group []Detail

type pairKey struct{ a, b uint64 }

// Run walks the ANN index at the given stride, building candidate pairs
// of files sharing a scene, filtering out pairs already seen or
// explicitly whitelisted, and projecting surviving windows into groups.
// Iteration order is deterministic given a fixed index, items, and
// store state. Per-window failures (a bad query, a dangling item
// reference, a failed whitelist lookup) are logged and skipped rather
// than aborting the run; an empty result is a legitimate outcome.
func Run(ctx context.Context, st store.Store, idx ann.Index, items []window.Item, step int, radius float32, logger *slog.Logger) ([]Group, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if step <= 0 {
		step = 1
	}

	known := make(map[pairKey]bool)
	var groups []Group

	for i := 0; i < idx.Len(); i += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := idx.Query(i, radius)
		if err != nil {
			logger.Warn("ann query failed, skipping", "index", i, "err", err)
			continue
		}
		sort.Ints(n)
		if len(n) <= 1 {
			continue
		}

		fidSet := make(map[uint64]bool)
		for _, m := range n {
			if m < 0 || m >= len(items) {
				logger.Warn("dangling window reference, skipping", "index", m)
				continue
			}
			fidSet[items[m].FileInfo.Fid] = true
		}
		fids := sortedFids(fidSet)

		var candidatePairs []pairKey
		for a := 0; a < len(fids); a++ {
			for b := a + 1; b < len(fids); b++ {
				key := pairKey{fids[a], fids[b]}
				if known[key] {
					continue
				}
				whitelisted, err := st.IsWhitelisted(ctx, key.a, key.b)
				if err != nil {
					logger.Warn("whitelist lookup failed, skipping pair", "a", key.a, "b", key.b, "err", err)
					continue
				}
				if whitelisted {
					continue
				}
				candidatePairs = append(candidatePairs, key)
			}
		}
		if len(candidatePairs) == 0 {
			continue
		}

		liveFids := make(map[uint64]bool)
		for _, p := range candidatePairs {
			known[p] = true
			liveFids[p.a] = true
			liveFids[p.b] = true
		}

		var details Group
		seen := make(map[uint64]bool)
		for _, m := range n {
			if m < 0 || m >= len(items) {
				continue
			}
			fi := items[m].FileInfo
			if !liveFids[fi.Fid] || seen[fi.Fid] {
				continue
			}
			seen[fi.Fid] = true
			details = append(details, Detail{
				FileInfo: fi,
				Offset:   float64(items[m].Frame) / fi.FPS,
			})
		}
		if len(details) > 1 {
			groups = append(groups, details)
		}
	}

	return groups, nil
}

func sortedFids(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for fid := range set {
		out = append(out, fid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
