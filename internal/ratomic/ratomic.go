// Package ratomic provides thin wrappers around sync/atomic for the counters
// shared between the batch queue and the metrics exporter. It mirrors the
// teacher's own cmn/atomic: a same-module convenience layer, not a
// third-party dependency.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package ratomic

import "sync/atomic"

// Int64 is a lock-free int64 counter.
type Int64 struct{ v int64 }

func (a *Int64) Store(n int64) { atomic.StoreInt64(&a.v, n) }
func (a *Int64) Load() int64   { return atomic.LoadInt64(&a.v) }
func (a *Int64) Inc() int64    { return atomic.AddInt64(&a.v, 1) }
func (a *Int64) Add(n int64) int64 { return atomic.AddInt64(&a.v, n) }

// Int32 is a lock-free int32 counter.
type Int32 struct{ v int32 }

func (a *Int32) Store(n int32) { atomic.StoreInt32(&a.v, n) }
func (a *Int32) Load() int32   { return atomic.LoadInt32(&a.v) }
func (a *Int32) Inc() int32    { return atomic.AddInt32(&a.v, 1) }

// Bool is a lock-free boolean flag.
type Bool struct{ v int32 }

func (a *Bool) Store(b bool) {
	if b {
		atomic.StoreInt32(&a.v, 1)
	} else {
		atomic.StoreInt32(&a.v, 0)
	}
}

func (a *Bool) Load() bool { return atomic.LoadInt32(&a.v) != 0 }

// CAS is a compare-and-swap on the boolean flag.
func (a *Bool) CAS(old, new bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if new {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&a.v, o, n)
}
