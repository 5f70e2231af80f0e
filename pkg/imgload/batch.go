/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"strings"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"

	"github.com/cortexlabs/imgload/internal/nlog"
)

// Batch owns configuration, the item list, the pack tensors, and the GPU
// stream for one registered filename list. SPEC_FULL.md §9 models the
// teacher's process-wide batch as a single long-lived instance reset in
// place between calls (clear + re-register) rather than reallocated, so
// thread creation and allocator churn are amortized the same way the
// teacher's global batch amortizes them.
type Batch struct {
	uuid string

	mu  sync.Mutex // guards cfg, names, fingerprint, pack, stream -- not the queue's own mutex
	cfg Config

	alloc         Allocator
	streamFactory StreamFactory

	q *queue

	names       []string
	fingerprint uint64

	pack       Tensor // host, packed mode only
	packDevice Tensor // device, packed+GPU only
	stream     Stream

	rng *planRNG

	metrics *Metrics
}

// NewBatch constructs an empty, CPU-mode batch with default configuration.
// alloc provides host/device tensor allocation; streamFactory lazily
// creates the GPU stream the first time a batch enters GPU mode.
func NewBatch(alloc Allocator, streamFactory StreamFactory, metrics *Metrics) *Batch {
	id, _ := shortid.Generate()
	return &Batch{
		uuid:          id,
		cfg:           DefaultConfig(),
		alloc:         alloc,
		streamFactory: streamFactory,
		q:             newQueue(),
		metrics:       metrics,
	}
}

// UUID identifies this batch instance, grounded on the teacher's per-xaction
// UUID (e.g. PrefixTcoID+genBEID) used to name its data-mover transport.
func (b *Batch) UUID() string { return b.uuid }

// Configure installs cfg for the next register/prefetch cycle. Callable
// only between Clear and the first RegisterItem, per §4.F.
func (b *Batch) Configure(cfg Config) error {
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	b.cfg = cfg
	b.rng = newPlanRNG(cfg.Seed)
	b.mu.Unlock()
	return nil
}

// Config returns a copy of the batch's current configuration.
func (b *Batch) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Fingerprint returns a hash of the registered filename list, in order, used
// by the dispatcher to cheaply reject a reuse candidate before falling back
// to an element-wise comparison (SPEC_FULL.md §4.H ambient addition).
func (b *Batch) Fingerprint() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fingerprint
}

// Names returns the batch's currently registered filenames, in order.
func (b *Batch) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// RegisterItem appends an item in probe state and wakes a worker.
func (b *Batch) RegisterItem(name string) {
	b.mu.Lock()
	index := len(b.names)
	b.names = append(b.names, name)
	b.fingerprint = xxhash.Checksum64([]byte(strings.Join(b.names, "\x00")))
	b.mu.Unlock()

	b.q.register(&Item{Name: name, Index: index})
	if b.metrics != nil {
		b.metrics.itemsRegistered.Inc()
	}
}

// SameFilenames reports whether names, in order, exactly matches the
// batch's currently registered filenames -- the condition under which the
// dispatcher reuses an in-flight prefetch instead of rebuilding (§4.H step
//2, tested by §8 S3/S4).
func (b *Batch) SameFilenames(names []string) bool {
	b.mu.Lock()
	cur := b.names
	fp := b.fingerprint
	b.mu.Unlock()
	if len(cur) != len(names) {
		return false
	}
	if len(names) > 0 && xxhash.Checksum64([]byte(strings.Join(names, "\x00"))) != fp {
		return false
	}
	for i := range names {
		if names[i] != cur[i] {
			return false
		}
	}
	return true
}

// items returns the queue's registered items. Only safe to call while no
// worker holds any item (between phases, or after a full Sync).
func (b *Batch) items() []*Item {
	b.q.mu.Lock()
	defer b.q.mu.Unlock()
	return append([]*Item(nil), b.q.items...)
}

// Prefetch drives the batch from freshly-registered probe items through
// plan derivation into the fetch phase, per §4.F:
//  1. sync to collect every probe result;
//  2. in packed mode, allocate the pack tensor (host, and device if GPU);
//  3. derive each item's transform plan;
//  4. in individual mode, allocate each item's own output tensor(s);
//  5. promote every item to fetch and wake the workers.
func (b *Batch) Prefetch() error {
	b.q.sync()

	cfg := b.Config()
	items := b.items()
	if len(items) == 0 {
		return nil
	}

	if cfg.Pack {
		outH, outW := cfg.FixedHeight, cfg.FixedWidth
		host, err := b.alloc.NewHost(outH, outW, 3, len(items))
		if err != nil {
			return newExecutionErr(err)
		}
		b.mu.Lock()
		b.pack = host
		b.mu.Unlock()
		if cfg.GPU {
			stream, err := b.ensureStream()
			if err != nil {
				return newExecutionErr(err)
			}
			dev, err := b.alloc.NewDevice(outH, outW, 3, len(items), stream)
			if err != nil {
				return newExecutionErr(err)
			}
			b.mu.Lock()
			b.packDevice = dev
			b.mu.Unlock()
		}
	}

	for _, it := range items {
		if it.Err() != nil {
			continue // per-file probe failure: subsequent stages skip it
		}
		itOutC := 3
		if !cfg.Pack {
			itOutC = it.InputShape.C
			if itOutC != 1 && itOutC != 3 {
				itOutC = 3
			}
		}
		it.Plan = derivePlan(&cfg, it.InputShape, itOutC, b.rng)

		if !cfg.Pack {
			host, err := b.alloc.NewHost(it.Plan.OutH, it.Plan.OutW, it.Plan.OutC, 1)
			if err != nil {
				it.err = newExecutionErr(err)
				continue
			}
			it.Host = host
			if cfg.GPU {
				stream, serr := b.ensureStream()
				if serr != nil {
					it.err = newExecutionErr(serr)
					continue
				}
				dev, derr := b.alloc.NewDevice(it.Plan.OutH, it.Plan.OutW, it.Plan.OutC, 1, stream)
				if derr != nil {
					it.err = newExecutionErr(derr)
					continue
				}
				it.Device = dev
			}
		}
	}

	b.q.promote(StateProbe, StateFetch)
	nlog.V(4, b.uuid, "prefetch: promoted", len(items), "items to fetch")
	return nil
}

// ensureStream lazily creates the batch's GPU stream, non-blocking, the
// first time it is needed.
func (b *Batch) ensureStream() (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		return b.stream, nil
	}
	s, err := b.streamFactory(0)
	if err != nil {
		return nil, err
	}
	b.stream = s
	return s, nil
}

// packSlice returns the bounds-checked sub-tensor for pack slab i, the view
// a fetch-phase worker writes its decoded pixels into in packed mode.
func (b *Batch) packSlice(i int) Tensor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pack.Slice(i)
}

// uploadPack enqueues the async whole-pack host->device copy triggered by
// the last fetch-phase return in packed+GPU mode (§4.D "return").
func (b *Batch) uploadPack() error {
	b.mu.Lock()
	stream, dev, host := b.stream, b.packDevice, b.pack
	b.mu.Unlock()
	if stream == nil || dev == nil || host == nil {
		return nil
	}
	return stream.CopyAsync(dev, host.Data())
}

// Sync blocks until every item's fetch has returned, marks the batch ready,
// and in GPU mode additionally stream-synchronizes so the caller never
// observes a half-copied device tensor.
func (b *Batch) Sync() error {
	b.q.sync()
	b.q.finishPhase(StateFetch, StateReady)
	b.mu.Lock()
	stream := b.stream
	b.mu.Unlock()
	if stream != nil {
		if err := stream.Synchronize(); err != nil {
			return newDeviceErr(b.uuid, err)
		}
	}
	return nil
}

// Relinquish transfers ownership of the batch's output tensors to the
// caller: the pack (packed mode) or each item's own tensor (individual
// mode). It does not clear the batch: the dispatcher leaves it registered
// after a synchronous call so that a repeat call with the same filenames
// reuses it, and Clear() releases it when a different filename list arrives.
func (b *Batch) Relinquish() (pack Tensor, perItem []Tensor) {
	b.mu.Lock()
	cfg := b.cfg
	p := b.pack
	d := b.packDevice
	b.mu.Unlock()

	if cfg.Pack {
		if cfg.GPU && d != nil {
			return d, nil
		}
		return p, nil
	}
	items := b.items()
	out := make([]Tensor, len(items))
	for _, it := range items {
		if it.Err() != nil {
			continue
		}
		if cfg.GPU && it.Device != nil {
			out[it.Index] = it.Device
		} else {
			out[it.Index] = it.Host
		}
	}
	return nil, out
}

// Clear drains any borrowed items, drops the item list, pack tensors, and
// registered names, and resets the phase counters. It does not tear down
// the GPU stream, which is reused across batches on this device.
func (b *Batch) Clear() {
	b.q.clear()
	b.mu.Lock()
	b.names = nil
	b.fingerprint = 0
	b.pack = nil
	b.packDevice = nil
	b.mu.Unlock()
}

// Finalize clears the batch and quits its queue so workers can exit. Wired
// to the process-exit hook (see dispatcher.go).
func (b *Batch) Finalize() {
	b.Clear()
	b.q.finalize()
}

// errorSummary returns a one-line, human readable summary of every
// per-item error in the batch, suitable for the dispatcher's result-time
// warning -- grounded on the teacher's practice (e.g. XactTCB.AddErr) of
// collecting per-item errors without aborting the batch.
func (b *Batch) errorSummary() string {
	var sb strings.Builder
	for _, it := range b.items() {
		if err := it.Err(); err != nil {
			if sb.Len() > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(err.Error())
		}
	}
	return sb.String()
}
