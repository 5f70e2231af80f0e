/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// global holds the process-wide dispatcher singleton described in
// SPEC_FULL.md §9: one batch and one worker pool amortized across every
// call into the package, analogous to the teacher's process-wide target
// state. Package-level functions below are the thin, stateless surface a
// caller's command layer talks to; CloseGlobal is the process-exit hook.
var (
	globalMu   sync.Mutex
	globalDisp *Dispatcher
)

// InitGlobal constructs the process-wide dispatcher. Calling it twice
// without an intervening CloseGlobal returns an error.
func InitGlobal(alloc Allocator, streamFactory StreamFactory, readerFactory ReaderFactory, numThreads int) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalDisp != nil {
		return newConfigErr("imgload: global dispatcher already initialized")
	}
	d, err := NewDispatcher(alloc, streamFactory, readerFactory, numThreads, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	globalDisp = d
	return nil
}

// DispatchGlobal runs one dispatch cycle against the process-wide
// dispatcher.
func DispatchGlobal(filenames []string, cfg Config) (*Result, error) {
	globalMu.Lock()
	d := globalDisp
	globalMu.Unlock()
	if d == nil {
		return nil, newConfigErr("imgload: global dispatcher not initialized")
	}
	return d.Dispatch(filenames, cfg)
}

// CloseGlobal finalizes the process-wide batch and joins its workers. A
// caller's process-exit hook should invoke this exactly once, e.g.:
//
//	if err := imgload.InitGlobal(alloc, streams, readers, n); err != nil {
//		log.Fatal(err)
//	}
//	defer imgload.CloseGlobal()
func CloseGlobal() error {
	globalMu.Lock()
	d := globalDisp
	globalDisp = nil
	globalMu.Unlock()
	if d == nil {
		return nil
	}
	return d.Close()
}
