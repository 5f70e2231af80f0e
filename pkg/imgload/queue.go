/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"sync"

	"github.com/cortexlabs/imgload/internal/ratomic"
)

// queue is the shared item list, dispatch cursor, and completion counter
// described in SPEC_FULL.md §4.D/E. All of its state transitions happen
// under one mutex; two condition variables (workAvail, itemDone) signal
// producers and consumers separately so a large batch's waiters aren't all
// woken for an event most of them don't care about -- per §9's "keep that
// split" design note.
type queue struct {
	mu sync.Mutex

	workAvail sync.Cond
	itemDone  sync.Cond

	items   []*Item
	cursor  int
	quit    bool

	returned  int
	depth     ratomic.Int64 // len(items) - cursor, published for metrics
}

func newQueue() *queue {
	q := &queue{}
	q.workAvail.L = &q.mu
	q.itemDone.L = &q.mu
	return q
}

// register appends an item in state probe and wakes one worker. Called only
// by the coordinator, between clear() and prefetch().
func (q *queue) register(it *Item) {
	q.mu.Lock()
	it.state = StateProbe
	q.items = append(q.items, it)
	q.depth.Store(int64(len(q.items) - q.cursor))
	q.mu.Unlock()
	q.workAvail.Signal()
}

// borrowNext blocks until an item is available or the queue is quitting. ok
// is false only when the queue has quit and there is nothing left to hand
// out -- the caller (a worker) should exit its loop.
func (q *queue) borrowNext() (it *Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.cursor >= len(q.items) && !q.quit {
		q.workAvail.Wait()
	}
	if q.cursor >= len(q.items) {
		return nil, false
	}
	it = q.items[q.cursor]
	q.cursor++
	it.borrowed = true
	q.depth.Store(int64(len(q.items) - q.cursor))
	return it, true
}

// promote transitions every item from state from to state to and wakes all
// workers; used by the coordinator to move the whole batch from probe to
// fetch once every probe result is in. It also rewinds the cursor so the
// newly-promoted items are handed out again.
func (q *queue) promote(from, to State) {
	q.mu.Lock()
	for _, it := range q.items {
		if it.state == from {
			it.state = to
		}
	}
	q.cursor = 0
	q.returned = 0
	q.depth.Store(int64(len(q.items)))
	q.mu.Unlock()
	q.workAvail.Broadcast()
}

// finishPhase transitions every item from state from to state to without
// rewinding the cursor or waking workers. It's used to mark a batch ready
// once every fetch has returned, when no further borrow is expected until
// the next register/Clear cycle -- unlike promote, there's no new work to
// hand out, so there's nothing to wake.
func (q *queue) finishPhase(from, to State) {
	q.mu.Lock()
	for _, it := range q.items {
		if it.state == from {
			it.state = to
		}
	}
	q.mu.Unlock()
}

// returnItem clears borrowed and counts the item toward this phase's
// completion. It does not itself advance the item's state -- the item
// keeps the state it was borrowed under until the coordinator promotes the
// whole batch (promote) or marks it ready (finishPhase) once every item of
// the phase has returned. last reports whether this was the final return
// of the current phase -- the caller combines it with the phase the item
// was borrowed under (see the open question in SPEC_FULL.md §9: the
// original's "was this a fetch-phase return" check is really just "what
// phase was this borrow for" checked after the fact, so callers here ask
// for that phase directly instead of re-reading it.state) to decide whether
// to trigger the packed-mode device upload.
func (q *queue) returnItem(it *Item) (last bool) {
	q.mu.Lock()
	it.borrowed = false
	q.returned++
	last = q.returned == len(q.items)
	q.mu.Unlock()
	q.itemDone.Broadcast()
	return last
}

// sync blocks until every item has been returned for the current phase.
func (q *queue) sync() {
	q.mu.Lock()
	for q.returned < len(q.items) {
		q.itemDone.Wait()
	}
	q.mu.Unlock()
}

// clear stops further handouts, waits for every borrowed item to come back,
// then drops the item list and resets counters.
func (q *queue) clear() {
	q.mu.Lock()
	q.cursor = len(q.items)
	for _, it := range q.items {
		for it.borrowed {
			q.itemDone.Wait()
		}
	}
	q.items = nil
	q.cursor = 0
	q.returned = 0
	q.depth.Store(0)
	q.mu.Unlock()
}

// finalize clears the queue then sets quit and wakes every waiter so
// workers can exit their borrowNext loop.
func (q *queue) finalize() {
	q.clear()
	q.mu.Lock()
	q.quit = true
	q.mu.Unlock()
	q.workAvail.Broadcast()
	q.itemDone.Broadcast()
}

// Depth returns len(items)-cursor, the number of items not yet handed out.
func (q *queue) Depth() int64 { return q.depth.Load() }

// Len returns the number of items currently registered.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
