/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cortexlabs/imgload/internal/nlog"
)

// Dispatcher reconciles an incoming filename list with any pending batch,
// issues prefetch/sync, and publishes results, per SPEC_FULL.md §4.H. Per
// §9's "global batch + worker pool" design note, a Dispatcher keeps one
// process-scoped Batch and WorkerPool alive across calls; the Dispatcher
// itself carries no other state.
type Dispatcher struct {
	mu      sync.Mutex
	batch   *Batch
	pool    *WorkerPool
	metrics *Metrics
}

// NewDispatcher constructs a dispatcher with its worker pool already
// running. alloc and streamFactory are the external tensor/device
// collaborators; readerFactory constructs one ImageReader per worker.
func NewDispatcher(alloc Allocator, streamFactory StreamFactory, readerFactory ReaderFactory, numThreads int, reg prometheus.Registerer) (*Dispatcher, error) {
	metrics := NewMetrics(reg)
	batch := NewBatch(alloc, streamFactory, metrics)
	pool := NewWorkerPool(batch, readerFactory, numThreads)
	if err := pool.Start(); err != nil {
		return nil, err
	}
	return &Dispatcher{batch: batch, pool: pool, metrics: metrics}, nil
}

// Result is what a synchronous Dispatch call hands back to the caller:
// either a single packed tensor, or one tensor per input filename (nil at
// index i if that file errored), plus any per-file warnings.
type Result struct {
	Pack     Tensor
	PerItem  []Tensor
	Warnings []string
}

// Dispatch implements §4.H:
//  1. resize the pool if numThreads changed;
//  2. reuse the pending batch if filenames exactly match it;
//  3. otherwise clear, configure, register, and prefetch;
//  4. return immediately if cfg.Prefetch;
//  5. otherwise sync and publish results.
//
// The batch is left registered after a synchronous dispatch rather than
// cleared: a later call with the same filenames hits step 2 and reuses it
// instead of re-registering and re-fetching. Step 3's Clear() is what
// evicts it once the caller moves on to a different filename list.
func (d *Dispatcher) Dispatch(filenames []string, cfg Config) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.Sanitize() {
		nlog.Warningln("dispatch: num_threads < 1, coerced to 1")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nlog.SetVerbosity(cfg.Verbose)

	if cfg.NumThreads != d.poolSize() {
		if err := d.pool.Resize(cfg.NumThreads); err != nil {
			return nil, err
		}
	}

	if d.batch.SameFilenames(filenames) {
		nlog.V(3, "dispatch: reusing in-flight batch", d.batch.UUID())
		if d.metrics != nil {
			d.metrics.reuseTotal.Inc()
		}
	} else {
		d.batch.Clear()
		if err := d.batch.Configure(cfg); err != nil {
			return nil, err
		}
		for _, name := range filenames {
			d.batch.RegisterItem(name)
		}
		if err := d.batch.Prefetch(); err != nil {
			return nil, err
		}
	}

	if cfg.Prefetch {
		return nil, nil
	}

	if err := d.batch.Sync(); err != nil {
		return nil, err
	}

	pack, perItem := d.batch.Relinquish()
	res := &Result{Pack: pack, PerItem: perItem}
	if summary := d.batch.errorSummary(); summary != "" {
		res.Warnings = append(res.Warnings, summary)
		nlog.Warningln("dispatch:", summary)
	}
	return res, nil
}

func (d *Dispatcher) poolSize() int { return d.pool.size }

// Close finalizes the batch and joins every worker. Wired to the process's
// shutdown path in cmd/imgload-bench (see §6 "Exit behavior": a
// process-exit hook finalizes the batch and joins workers -- Go has no true
// atexit, so the binary's main calls this via defer instead).
func (d *Dispatcher) Close() error {
	return d.pool.Stop()
}
