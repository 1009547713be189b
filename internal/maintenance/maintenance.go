// Package maintenance implements the store-repair operations a running
// install needs between imports: dropping entries for files that
// disappeared, updating a row after a manual move, reconciling a whole
// directory of renames, recording whitelisted false positives, and
// backfilling hashes for files that only ever got as far as brightness.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Eierkopp/viddup/internal/extrema"
	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// PurgeReport lists files a Purge call found unreadable.
type PurgeReport struct {
	Fid  uint64
	Path string
}

// Purge enumerates every stored file and, for each whose path is no
// longer readable, either reports it (dryRun) or deletes its row with a
// full cascade. Each deletion is its own transaction, so a failure
// partway through leaves earlier deletions committed.
func Purge(ctx context.Context, st store.Store, dryRun bool) ([]PurgeReport, error) {
	infos, err := st.GetFileInfos(ctx)
	if err != nil {
		return nil, err
	}

	var reports []PurgeReport
	for _, fi := range infos {
		if isReadable(fi.Name) {
			continue
		}
		reports = append(reports, PurgeReport{Fid: fi.Fid, Path: fi.Name})
		if dryRun {
			continue
		}
		if err := st.WithTx(ctx, func(tx store.Store) error {
			return tx.DelFile(ctx, fi.Fid)
		}); err != nil {
			return reports, fmt.Errorf("purge %s: %w", fi.Name, err)
		}
	}
	return reports, nil
}

// Rename moves oldPath to newPath on disk and updates the stored path.
// old must be readable and new must not already exist; renaming a path
// the store doesn't know about is a no-op, not an error.
func Rename(ctx context.Context, st store.Store, oldPath, newPath string) error {
	if !isReadable(oldPath) {
		return fmt.Errorf("%w: %s not readable", vidtypes.ErrInvalidInput, oldPath)
	}
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%w: %s already exists", vidtypes.ErrInvalidInput, newPath)
	}

	fid, ok, err := st.GetID(ctx, oldPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	return st.WithTx(ctx, func(tx store.Store) error {
		if err := os.Rename(oldPath, newPath); err != nil {
			return err
		}
		return tx.UpdateName(ctx, fid, newPath)
	})
}

// FixMoved scans dir, builds a basename-to-FileInfo map from the store,
// drops any basename that maps to more than one FileInfo (ambiguous),
// and updates the stored path for every on-disk file whose basename
// uniquely matches a stored entry with a different absolute path.
//
// It waits for a burst of filesystem events in dir to quiesce (a
// one-shot settle detector, not a standing watch loop) before taking
// its directory snapshot, so a rename-in-progress doesn't get scanned
// mid-move.
func FixMoved(ctx context.Context, st store.Store, dir string, settle time.Duration) (int, error) {
	if err := awaitSettled(ctx, dir, settle); err != nil {
		return 0, err
	}

	infos, err := st.GetFileInfos(ctx)
	if err != nil {
		return 0, err
	}

	byBase := make(map[string]vidtypes.FileInfo)
	ambiguous := make(map[string]bool)
	for _, fi := range infos {
		base := filepath.Base(fi.Name)
		if _, exists := byBase[base]; exists {
			ambiguous[base] = true
			continue
		}
		byBase[base] = fi
	}
	for base := range ambiguous {
		delete(byBase, base)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, ok := byBase[e.Name()]
		if !ok {
			continue
		}
		abs := filepath.Join(dir, e.Name())
		if abs == fi.Name {
			continue
		}
		if err := st.UpdateName(ctx, fi.Fid, abs); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// awaitSettled returns once no filesystem event under dir has arrived
// for settle; every event restarts that wait. It returns immediately (no
// error) if the watch can't be established — FixMoved then simply
// scans without waiting, which is still correct, just possibly racy
// against an in-progress move.
func awaitSettled(ctx context.Context, dir string, settle time.Duration) error {
	if settle <= 0 {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return nil
	}

	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watcher.Events:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(settle)
		case <-timer.C:
			return nil
		}
	}
}

// WhitelistReport lists the paths a Whitelist call couldn't resolve.
type WhitelistReport struct {
	Unknown []string
}

// Whitelist resolves each of at least two paths to a fid, reports any
// that aren't in the store, and inserts every pairwise combination of
// the ones that resolved.
func Whitelist(ctx context.Context, st store.Store, paths []string) (WhitelistReport, error) {
	if len(paths) < 2 {
		return WhitelistReport{}, fmt.Errorf("%w: whitelist needs at least 2 paths", vidtypes.ErrInvalidInput)
	}

	var fids []uint64
	var report WhitelistReport
	for _, p := range paths {
		fid, ok, err := st.GetID(ctx, p)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Unknown = append(report.Unknown, p)
			continue
		}
		fids = append(fids, fid)
	}

	for i := 0; i < len(fids); i++ {
		for j := i + 1; j < len(fids); j++ {
			if err := st.Whitelist(ctx, fids[i], fids[j]); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

// Migrate recomputes and inserts hashes, via the stored fps, for every
// file that has brightness but no hashes — the repair path for an
// import interrupted between the brightness and hash insert steps of
// an older run.
func Migrate(ctx context.Context, st store.Store) (int, error) {
	infos, err := st.GetFileInfos(ctx)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, fi := range infos {
		has, err := st.HasHashes(ctx, fi.Fid)
		if err != nil {
			return migrated, err
		}
		if has {
			continue
		}
		series, err := st.GetBrightness(ctx, fi.Fid)
		if err != nil || len(series) == 0 {
			continue
		}
		entries := extrema.Detect(series, fi.FPS)
		if len(entries) == 0 {
			continue
		}
		if err := st.WithTx(ctx, func(tx store.Store) error {
			return tx.InsertHashes(ctx, fi.Fid, entries)
		}); err != nil {
			return migrated, fmt.Errorf("migrate %s: %w", fi.Name, err)
		}
		migrated++
	}
	return migrated, nil
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
