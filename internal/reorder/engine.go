// Package reorder moves one entry to a new position in the shared rank
// order and shifts the minimal window of peers to make room.
package reorder

import (
	"context"
	"errors"
	"fmt"

	"organaizer/api/internal/store"
)

// ErrNotFound is returned when the target entry does not exist. No
// writes have been performed when this error is returned.
var ErrNotFound = store.ErrNotFound

// EntryStore is the persistence contract the engine needs. Any backing
// store works: the engine only reads an ordered rank window and writes
// single-row rank updates. Implementations refresh the entry's
// updatedat timestamp on every rank write.
type EntryStore interface {
	FetchByKey(ctx context.Context, key string) (store.Entry, error)
	// FetchRankWindow returns entries whose rank lies between low and
	// high, ascending by rank. The include flags control whether each
	// boundary is closed.
	FetchRankWindow(ctx context.Context, low, high float64, includeLow, includeHigh bool) ([]store.Entry, error)
	UpdateRank(ctx context.Context, key string, rank float64) error
}

// PeerChange records one peer shifted to accommodate the move.
type PeerChange struct {
	Key     string  `json:"key"`
	NewRank float64 `json:"newRank"`
}

// Result describes a completed reorder.
type Result struct {
	Entry     store.Entry
	Reordered []PeerChange
	NoOp      bool
}

type Engine struct {
	store EntryStore
}

func New(entryStore EntryStore) *Engine {
	return &Engine{store: entryStore}
}

// Reorder places the entry at newRank and shifts every in-scope peer
// between the old and new position by one rank unit toward the vacated
// slot. scope limits which entries participate in the shift; nil means
// the whole global order. Entries rejected by scope are never written.
//
// Writes are issued sequentially with no transaction: the target first,
// then peers in ascending rank order. A failure partway through leaves
// already-written rows in place; the caller must treat any error as
// "state may be partially applied, re-fetch and retry".
func (e *Engine) Reorder(ctx context.Context, entryKey string, newRank float64, scope func(store.Entry) bool) (Result, error) {
	target, err := e.store.FetchByKey(ctx, entryKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("fetch entry %s: %w", entryKey, err)
	}

	oldRank := target.Rank
	if oldRank == newRank {
		return Result{Entry: target, NoOp: true}, nil
	}

	// Moving down vacates the slot above the window, so peers in
	// (oldRank, newRank] slide down by one; moving up is the mirror
	// image over [newRank, oldRank).
	movingDown := newRank > oldRank
	var window []store.Entry
	if movingDown {
		window, err = e.store.FetchRankWindow(ctx, oldRank, newRank, false, true)
	} else {
		window, err = e.store.FetchRankWindow(ctx, newRank, oldRank, true, false)
	}
	if err != nil {
		return Result{}, fmt.Errorf("fetch rank window: %w", err)
	}

	delta := 1.0
	if movingDown {
		delta = -1.0
	}

	peers := make([]PeerChange, 0, len(window))
	for _, peer := range window {
		if peer.Key == entryKey {
			continue
		}
		if scope != nil && !scope(peer) {
			continue
		}
		peers = append(peers, PeerChange{Key: peer.Key, NewRank: peer.Rank + delta})
	}

	if err := e.store.UpdateRank(ctx, entryKey, newRank); err != nil {
		return Result{}, fmt.Errorf("update entry %s rank: %w", entryKey, err)
	}
	for _, peer := range peers {
		if err := e.store.UpdateRank(ctx, peer.Key, peer.NewRank); err != nil {
			return Result{}, fmt.Errorf("update peer %s rank: %w", peer.Key, err)
		}
	}

	// Re-read the target so the result carries the rank and updatedat
	// the store actually persisted.
	updated, err := e.store.FetchByKey(ctx, entryKey)
	if err != nil {
		return Result{}, fmt.Errorf("fetch entry %s after update: %w", entryKey, err)
	}
	return Result{Entry: updated, Reordered: peers}, nil
}
