// Package store defines the persistence contract between viddup's core
// and its backing relational store, plus a sqlite-backed
// implementation. The relational driver itself is treated as an
// external collaborator — callers depend only on the Store interface.
package store

import (
	"context"
	"time"

	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// Store is the full gateway surface C5, C7, C8, and C9 consume.
// Implementations must give read-committed isolation for single
// statement reads; write sequences needing atomicity use WithTx.
type Store interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) error
	InsertFile(ctx context.Context, path string, fps, duration float64) (vidtypes.FileInfo, error)
	InsertBrightness(ctx context.Context, fid uint64, series []float32) error
	InsertHashes(ctx context.Context, fid uint64, entries []vidtypes.HashEntry) error
	HasHashes(ctx context.Context, fid uint64) (bool, error)
	GetBrightness(ctx context.Context, fid uint64) ([]float32, error)
	GetHashes(ctx context.Context, fid uint64, minFrame, maxFrame uint32) ([]uint32, []float32, error)
	GetFileInfos(ctx context.Context) ([]vidtypes.FileInfo, error)
	UpdateName(ctx context.Context, fid uint64, newPath string) error
	UpdateFileMeta(ctx context.Context, fid uint64, fps, duration float64) error
	ClearBrightness(ctx context.Context, fid uint64) error
	ClearHashes(ctx context.Context, fid uint64) error
	DelFile(ctx context.Context, fid uint64) error
	Whitelist(ctx context.Context, a, b uint64) error
	IsWhitelisted(ctx context.Context, a, b uint64) (bool, error)
	GetID(ctx context.Context, path string) (uint64, bool, error)

	// WithTx runs fn against a Store bound to a single transaction,
	// committing on a nil return and rolling back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
}
