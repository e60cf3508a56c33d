// Package repostate holds the ingested repository that queries run against.
//
// There is exactly one current Snapshot. Ingestion builds the next snapshot
// off to the side and publishes it with a single atomic swap, so readers see
// either the old or the new snapshot in full. A retired snapshot's index is
// closed only after every reader that pinned it has finished.
package repostate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/codenav/internal/errs"
	"github.com/seanblong/codenav/internal/store"
	"github.com/seanblong/codenav/pkg/models"
)

// Snapshot is one ingestion epoch. Its fields are not modified after it is
// published.
type Snapshot struct {
	Epoch      string
	Repository string
	Files      []models.SourceFile
	Chunks     []models.Chunk
	// Index holds one vector per chunk; hit ordinals index Chunks.
	Index     store.Index
	CreatedAt time.Time

	mu     sync.RWMutex
	closed bool
}

// Backend names the vector backend of the snapshot's index.
func (s *Snapshot) Backend() string {
	if s.Index == nil {
		return ""
	}
	return s.Index.Backend()
}

func (s *Snapshot) retire() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.Index == nil {
		return
	}
	if err := s.Index.Close(); err != nil {
		log.Warn().Err(err).Str("epoch", s.Epoch).Msg("failed to close retired index")
	}
}

// BuildFunc produces the next snapshot.
type BuildFunc func(ctx context.Context) (*Snapshot, error)

// State is the holder of the current snapshot. It is safe for concurrent
// use: one writer at a time, any number of readers.
type State struct {
	current atomic.Pointer[Snapshot]
	writer  chan struct{}
}

func New() *State {
	return &State{writer: make(chan struct{}, 1)}
}

// Ingest runs build while holding the writer slot and publishes its result.
// Callers waiting for the slot give up when ctx is done. A failed build
// leaves the current snapshot in place.
func (s *State) Ingest(ctx context.Context, build BuildFunc) (*Snapshot, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.writer }()

	next, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now()
	}

	if old := s.current.Swap(next); old != nil {
		old.retire()
	}
	log.Info().
		Str("epoch", next.Epoch).
		Str("repository", next.Repository).
		Int("chunks", len(next.Chunks)).
		Msg("snapshot published")
	return next, nil
}

// View runs fn against the current snapshot, which stays open until fn
// returns. It fails with EmptyIndexError before the first ingestion. fn must
// not call View.
func (s *State) View(fn func(*Snapshot) error) error {
	for {
		snap := s.current.Load()
		if snap == nil {
			return errs.E(errs.EmptyIndexError, "view", nil)
		}
		snap.mu.RLock()
		if snap.closed {
			// lost the race with a swap; the next load sees the new snapshot
			snap.mu.RUnlock()
			continue
		}
		err := fn(snap)
		snap.mu.RUnlock()
		return err
	}
}

// Current returns the current snapshot or nil. Its index may be closed at
// any time by a concurrent ingestion; query it through View.
func (s *State) Current() *Snapshot {
	return s.current.Load()
}

// Close retires the current snapshot.
func (s *State) Close() {
	if old := s.current.Swap(nil); old != nil {
		old.retire()
	}
}
