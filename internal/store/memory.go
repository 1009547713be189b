package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// MemoryStore is an in-memory Store used by tests across the search,
// window, and maintenance packages in place of a real database.
type MemoryStore struct {
	mu         sync.Mutex
	nextFid    uint64
	files      map[uint64]vidtypes.FileInfo
	brightness map[uint64][]float32
	hashes     map[uint64][]vidtypes.HashEntry
	whitelist  map[vidtypes.Whitelist]bool
	locks      map[string]vidtypes.ImportLock
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:      make(map[uint64]vidtypes.FileInfo),
		brightness: make(map[uint64][]float32),
		hashes:     make(map[uint64][]vidtypes.HashEntry),
		whitelist:  make(map[vidtypes.Whitelist]bool),
		locks:      make(map[string]vidtypes.ImportLock),
	}
}

func (m *MemoryStore) TryLock(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if l, ok := m.locks[key]; ok && !l.Expired(now) {
		return vidtypes.ErrAlreadyLocked
	}
	m.locks[key] = vidtypes.ImportLock{Key: key, AcquiredAt: now, TTL: ttl}
	return nil
}

func (m *MemoryStore) InsertFile(_ context.Context, path string, fps, duration float64) (vidtypes.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFid++
	fi := vidtypes.FileInfo{Fid: m.nextFid, Name: path, FPS: fps, Duration: duration}
	m.files[fi.Fid] = fi
	return fi, nil
}

func (m *MemoryStore) InsertBrightness(_ context.Context, fid uint64, series []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(series))
	copy(cp, series)
	m.brightness[fid] = cp
	return nil
}

func (m *MemoryStore) InsertHashes(_ context.Context, fid uint64, entries []vidtypes.HashEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[fid] = append(m.hashes[fid], entries...)
	sort.Slice(m.hashes[fid], func(i, j int) bool {
		return m.hashes[fid][i].FrameIndex < m.hashes[fid][j].FrameIndex
	})
	return nil
}

func (m *MemoryStore) HasHashes(_ context.Context, fid uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes[fid]) > 0, nil
}

func (m *MemoryStore) GetBrightness(_ context.Context, fid uint64) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.brightness[fid]...), nil
}

func (m *MemoryStore) GetHashes(_ context.Context, fid uint64, minFrame, maxFrame uint32) ([]uint32, []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var frames []uint32
	var gaps []float32
	for _, e := range m.hashes[fid] {
		if e.FrameIndex >= minFrame && e.FrameIndex < maxFrame {
			frames = append(frames, e.FrameIndex)
			gaps = append(gaps, e.GapSeconds)
		}
	}
	return frames, gaps, nil
}

func (m *MemoryStore) GetFileInfos(_ context.Context) ([]vidtypes.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vidtypes.FileInfo, 0, len(m.files))
	for _, fi := range m.files {
		out = append(out, fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fid < out[j].Fid })
	return out, nil
}

func (m *MemoryStore) UpdateName(_ context.Context, fid uint64, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fi, ok := m.files[fid]
	if !ok {
		return nil
	}
	fi.Name = newPath
	m.files[fid] = fi
	return nil
}

func (m *MemoryStore) UpdateFileMeta(_ context.Context, fid uint64, fps, duration float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fi, ok := m.files[fid]
	if !ok {
		return nil
	}
	fi.FPS = fps
	fi.Duration = duration
	m.files[fid] = fi
	return nil
}

func (m *MemoryStore) ClearBrightness(_ context.Context, fid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.brightness, fid)
	return nil
}

func (m *MemoryStore) ClearHashes(_ context.Context, fid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, fid)
	return nil
}

func (m *MemoryStore) DelFile(_ context.Context, fid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, fid)
	delete(m.brightness, fid)
	delete(m.hashes, fid)
	for w := range m.whitelist {
		if w.FidLo == fid || w.FidHi == fid {
			delete(m.whitelist, w)
		}
	}
	return nil
}

func (m *MemoryStore) Whitelist(_ context.Context, a, b uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whitelist[vidtypes.NewWhitelist(a, b)] = true
	return nil
}

func (m *MemoryStore) IsWhitelisted(_ context.Context, a, b uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.whitelist[vidtypes.NewWhitelist(a, b)], nil
}

func (m *MemoryStore) GetID(_ context.Context, path string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for fid, fi := range m.files {
		if fi.Name == path {
			return fid, true, nil
		}
	}
	return 0, false, nil
}

// WithTx runs fn directly against m: the in-memory fake has no partial
// failure modes to roll back, so it offers no-op transaction semantics
// sufficient for exercising callers.
func (m *MemoryStore) WithTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}
