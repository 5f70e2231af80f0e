/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cortexlabs/imgload/internal/nlog"
)

// WorkerPool is the fixed-size pool of long-lived workers described in
// SPEC_FULL.md §4.G/§5: created once at dispatcher init and persisting
// across calls, each pulling items from the batch's queue and executing
// either the probe or fetch work appropriate to the item's state. Pool
// teardown is coordinated with golang.org/x/sync/errgroup, grounded on the
// teacher's own use of golang.org/x/sync for goroutine groups, so a panic in
// any worker is returned by Stop as a single error instead of being
// swallowed per-goroutine. A worker-creation failure (a §7 Execution error)
// is returned by Start before any worker runs.
type WorkerPool struct {
	batch         *Batch
	readerFactory ReaderFactory
	size          int

	cancel context.CancelFunc
	g      *errgroup.Group
}

// NewWorkerPool constructs a pool of n workers bound to batch, each owning
// its own ImageReader and BufferPool (never shared, per §5).
func NewWorkerPool(batch *Batch, readerFactory ReaderFactory, n int) *WorkerPool {
	if n < 1 {
		n = 1
	}
	return &WorkerPool{batch: batch, readerFactory: readerFactory, size: n}
}

// Start launches the pool's goroutines. It returns once every worker has
// been scheduled. A ReaderFactory that returns a nil reader for any worker
// is reported as a KindExecution error before any goroutine is launched; a
// panic inside the ReaderFactory is not recovered and reaches Start's caller.
func (wp *WorkerPool) Start() error {
	readers := make([]ImageReader, wp.size)
	for i := range readers {
		if readers[i] = wp.readerFactory(); readers[i] == nil {
			return newExecutionErr(fmt.Errorf("worker %d: reader factory returned nil", i))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	wp.cancel = cancel
	wp.g = g

	for i := 0; i < wp.size; i++ {
		id := i
		reader := readers[i]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = newExecutionErr(fmt.Errorf("worker %d: panic: %v", id, r))
				}
			}()
			runWorker(ctx, id, wp.batch, reader)
			return nil
		})
	}
	return nil
}

// Stop finalizes the bound batch (quitting its queue) and waits for every
// worker goroutine to exit.
func (wp *WorkerPool) Stop() error {
	wp.batch.Finalize()
	if wp.cancel != nil {
		wp.cancel()
	}
	if wp.g == nil {
		return nil
	}
	return wp.g.Wait()
}

// Resize tears the pool down and rebuilds it at a new size, per §4.H step 1
// ("if the worker count differs from requested, clear the batch and rebuild
// the pool").
func (wp *WorkerPool) Resize(n int) error {
	if n == wp.size {
		return nil
	}
	if err := wp.Stop(); err != nil {
		return err
	}
	wp.batch.q = newQueue()
	wp.size = n
	return wp.Start()
}

// runWorker is the per-goroutine loop from §4.G. It runs until the batch's
// queue quits.
func runWorker(ctx context.Context, id int, b *Batch, reader ImageReader) {
	// The spec models workers as OS-level threads bound to a GPU device;
	// LockOSThread is the closest Go analogue, so that "adopt the batch's
	// device" below is a meaningful per-worker operation rather than one
	// that could silently migrate to a different M between items.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	bufs := &BufferPool{}
	curDevice := -1

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		it, ok := b.q.borrowNext()
		if !ok {
			return
		}

		if b.metrics != nil {
			b.metrics.queueDepth.Set(float64(b.q.Depth()))
		}

		if it.Err() != nil {
			b.q.returnItem(it)
			continue
		}

		phase := it.state
		cfg := b.Config()

		if cfg.GPU {
			if stream, err := b.ensureStream(); err == nil && stream.Device() != curDevice {
				curDevice = stream.Device()
			}
		}

		switch phase {
		case StateProbe:
			runProbe(it, reader, b.metrics)
		case StateFetch:
			runFetch(it, b, reader, bufs, &cfg)
			b.metrics.ObserveScratch(id, bufs)
		case StateReady:
			// no-op, per §4.G step 4.
		}

		last := b.q.returnItem(it)
		if last && phase == StateFetch && cfg.Pack && cfg.GPU {
			if err := b.uploadPack(); err != nil {
				it.err = newDeviceErr(it.Name, err)
				nlog.Errorln("pack upload:", err)
			}
		}
	}
}

func runProbe(it *Item, reader ImageReader, m *Metrics) {
	shape, err := reader.ProbeShape(it.Name)
	if err != nil {
		it.err = newReadErr(it.Name, err)
		if m != nil {
			m.itemsFailed.WithLabelValues(KindRead.String()).Inc()
		}
		return
	}
	it.InputShape = shape
	if m != nil {
		m.itemsProbed.Inc()
	}
}

func runFetch(it *Item, b *Batch, reader ImageReader, bufs *BufferPool, cfg *Config) {
	shape, pixels, err := reader.DecodePixels(it.Name, bufs)
	if err != nil {
		it.err = newReadErr(it.Name, err)
		if b.metrics != nil {
			b.metrics.itemsFailed.WithLabelValues(KindRead.String()).Inc()
		}
		return
	}

	plan := it.Plan
	vert := bufs.Get(1, shape.C*plan.OutH*shape.W)
	resizeVertical(vert, pixels, plan.OutH, shape.H, shape.W, shape.C, plan.CropH, plan.CropY)

	var out []float32
	if cfg.Pack {
		out = b.packSlice(it.Index).Data()
	} else {
		out = it.Host.Data()
	}
	resizeHorizontal(out, vert, plan.OutW, shape.W, plan.OutH, plan.OutC, shape.C, plan.CropW, plan.CropX, plan.Flip)

	colorAugment(out, plan.OutH, plan.OutW, plan.OutC, shape.C, plan, b.Config().SubtractAverage)

	if !cfg.Pack && cfg.GPU && it.Device != nil {
		stream, serr := b.ensureStream()
		if serr != nil {
			it.err = newDeviceErr(it.Name, serr)
			return
		}
		if cerr := stream.CopyAsync(it.Device, out); cerr != nil {
			it.err = newDeviceErr(it.Name, cerr)
			return
		}
	}

	if b.metrics != nil {
		b.metrics.itemsFetched.Inc()
	}
}
