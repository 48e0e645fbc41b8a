/*
locks.go - Per-entry lock manager

PURPOSE:
  Serializes mutations against a single (owner, asset) wallet entry so
  concurrent debits cannot both read the same quantity. The exchange
  transaction acquires its locks in sorted asset order; two requests
  touching the same asset set therefore lock in the same sequence and
  cannot deadlock.
*/
package wallet

import (
	"sort"
	"sync"

	"github.com/warp/raffle-engine/core"
)

// EntryLocks hands out one mutex per (owner, asset) pair.
type EntryLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEntryLocks() *EntryLocks {
	return &EntryLocks{locks: make(map[string]*sync.Mutex)}
}

func (el *EntryLocks) get(owner core.OwnerID, asset core.AssetID) *sync.Mutex {
	key := string(owner) + "\x00" + string(asset)

	el.mu.Lock()
	defer el.mu.Unlock()

	m, ok := el.locks[key]
	if !ok {
		m = &sync.Mutex{}
		el.locks[key] = m
	}
	return m
}

// Lock acquires the lock for one entry and returns its release func.
func (el *EntryLocks) Lock(owner core.OwnerID, asset core.AssetID) func() {
	m := el.get(owner, asset)
	m.Lock()
	return m.Unlock
}

// LockAll acquires locks for every asset in deterministic (sorted)
// order and returns a single release func. Sorting prevents circular
// wait between two requests locking overlapping asset sets.
func (el *EntryLocks) LockAll(owner core.OwnerID, assets []core.AssetID) func() {
	ordered := make([]core.AssetID, len(assets))
	copy(ordered, assets)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, a := range ordered {
		m := el.get(owner, a)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
