// Package importer drives a single file, or a whole directory tree,
// through frame decoding, brightness collection, and extremum
// detection into the store — the end-to-end write path every other
// component's data ultimately comes from.
package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Eierkopp/viddup/internal/brightness"
	"github.com/Eierkopp/viddup/internal/extrema"
	"github.com/Eierkopp/viddup/internal/frame"
	"github.com/Eierkopp/viddup/internal/store"
)

// DefaultLockTTL is the advisory import-lock lifetime: long enough that
// a crashed run's lock on a file clears on its own without an operator
// having to intervene.
const DefaultLockTTL = time.Hour

// inFlightDownloadWindow skips directory entries modified more recently
// than this, on the theory that they're still being written.
const inFlightDownloadWindow = 36 * time.Second

// Coordinator orchestrates imports against a Store and a frame.Source.
type Coordinator struct {
	Store      store.Store
	Source     frame.Source
	LockTTL    time.Duration
	Extensions []string // lowercase, with leading dot; nil means accept everything
	Logger     *slog.Logger

	stopped atomic.Bool
}

// Stop flips the process-wide stop flag checked between files. The
// file currently being imported always completes.
func (c *Coordinator) Stop() { c.stopped.Store(true) }

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Coordinator) ttl() time.Duration {
	if c.LockTTL > 0 {
		return c.LockTTL
	}
	return DefaultLockTTL
}

// ImportFile runs the full import pipeline for a single path. It never
// returns an error for a condition that was already logged and treated
// as a routine skip (unreadable source, already locked, already
// imported without refresh) — those are reported via log output only,
// matching the per-file failure isolation the directory walker relies
// on. It does return an error for context cancellation.
func (c *Coordinator) ImportFile(ctx context.Context, path string, refresh bool) error {
	log := c.logger().With("path", path)

	if !isReadable(path) {
		log.Warn("source unreadable, skipping")
		return nil
	}

	existingFid, exists, err := c.Store.GetID(ctx, path)
	if err != nil {
		return err
	}
	if exists && !refresh {
		log.Debug("already imported, skipping")
		return nil
	}

	if err := c.Store.TryLock(ctx, path, c.ttl()); err != nil {
		log.Warn("import already in progress, skipping")
		return nil
	}

	if err := spinUpRead(path); err != nil {
		log.Warn("spin-up read failed", "err", err)
	}

	meta, frames, errs, err := c.Source.Open(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("decode failed, abandoning file (lock held until TTL expiry)", "err", err)
		return nil
	}

	series := brightness.Collect(frames)
	if decodeErr := drainErrs(errs); decodeErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	hashes := extrema.Detect(series, meta.FPS)

	if err := c.Store.WithTx(ctx, func(tx store.Store) error {
		fid := existingFid
		if exists {
			// Refresh: reuse the existing fid so whitelist rows, which
			// key on fid rather than name, survive the re-import.
			if err := tx.UpdateFileMeta(ctx, fid, meta.FPS, meta.Duration); err != nil {
				return err
			}
			if err := tx.ClearBrightness(ctx, fid); err != nil {
				return err
			}
			if err := tx.ClearHashes(ctx, fid); err != nil {
				return err
			}
		} else {
			fi, err := tx.InsertFile(ctx, path, meta.FPS, meta.Duration)
			if err != nil {
				return err
			}
			fid = fi.Fid
		}
		if err := tx.InsertBrightness(ctx, fid, series); err != nil {
			return err
		}
		return tx.InsertHashes(ctx, fid, hashes)
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("store write failed, abandoning file (lock held until TTL expiry)", "err", err)
		return nil
	}

	return nil
}

// ImportDir walks root in directory-listing sort order, importing every
// file whose extension matches (when Extensions is set), skipping
// entries modified within the in-flight-download window. The stop
// token is checked only between files.
func (c *Coordinator) ImportDir(ctx context.Context, root string, refresh bool) error {
	paths, err := c.listCandidates(root)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if c.stopped.Load() {
			c.logger().Info("stop requested, halting before next file")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.ImportFile(ctx, path, refresh); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) listCandidates(root string) ([]string, error) {
	var paths []string
	now := time.Now()

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !c.extensionAllowed(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) < inFlightDownloadWindow {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Coordinator) extensionAllowed(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// spinUpRead reads the first 1 KiB of path, a disk spin-up nudge for
// drives that need a moment to reach full read speed before the
// decoder starts pulling frames in earnest.
func spinUpRead(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, 1024)
	_, err = f.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func drainErrs(errs <-chan error) error {
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
	}
	return first
}
