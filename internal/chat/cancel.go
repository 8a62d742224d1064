// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelSet holds the cancel functions of all in-flight requests.
// Several requests can be in flight when a new question is submitted while
// stopped ones are still winding down.
type cancelSet struct {
	mu    sync.Mutex
	next  uint64
	funcs map[uint64]context.CancelCauseFunc
}

func newCancelSet() *cancelSet {
	return &cancelSet{funcs: make(map[uint64]context.CancelCauseFunc)}
}

// add registers fn and returns its handle.
func (cs *cancelSet) add(fn context.CancelCauseFunc) uint64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.next++
	cs.funcs[cs.next] = fn
	return cs.next
}

// remove releases the context of a finished request.
// Safe to call for handles already cancelled by cancelAll.
func (cs *cancelSet) remove(id uint64) {
	cs.mu.Lock()
	fn, ok := cs.funcs[id]
	delete(cs.funcs, id)
	cs.mu.Unlock()
	if ok {
		fn(nil) // Always cancel to prevent context leaks
	}
}

// cancelAll cancels every registered request with cause and forgets them.
// Returns the number of requests cancelled.
func (cs *cancelSet) cancelAll(cause error) int {
	cs.mu.Lock()
	funcs := cs.funcs
	cs.funcs = make(map[uint64]context.CancelCauseFunc)
	cs.mu.Unlock()

	for _, fn := range funcs {
		fn(cause)
	}
	return len(funcs)
}

// len returns the number of registered requests.
func (cs *cancelSet) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.funcs)
}
