/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestDispatcher(t *testing.T, numThreads int, reader *fakeReader) (*Dispatcher, *fakeAllocator) {
	t.Helper()
	alloc := &fakeAllocator{}
	d, err := NewDispatcher(alloc, func(int) (Stream, error) { return &fakeStream{}, nil },
		func() ImageReader { return reader }, numThreads, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, alloc
}

func TestDispatchIndividualModeShapes(t *testing.T) {
	reader := newFakeReader(map[string]Shape{
		"a.jpg": {H: 40, W: 40, C: 3},
		"b.jpg": {H: 20, W: 60, C: 3},
	}, nil)
	d, _ := newTestDispatcher(t, 2, reader)

	cfg := DefaultConfig()
	cfg.NumThreads = 2
	res, err := d.Dispatch([]string{"a.jpg", "b.jpg"}, cfg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Pack != nil {
		t.Fatalf("individual mode returned a packed tensor")
	}
	if len(res.PerItem) != 2 {
		t.Fatalf("PerItem len = %d, want 2", len(res.PerItem))
	}
	h, w, c, n := res.PerItem[0].Shape()
	if h != 40 || w != 40 || c != 3 || n != 1 {
		t.Fatalf("item 0 shape = (%d,%d,%d,%d), want (40,40,3,1)", h, w, c, n)
	}
	h, w, c, n = res.PerItem[1].Shape()
	if h != 20 || w != 60 || c != 3 || n != 1 {
		t.Fatalf("item 1 shape = (%d,%d,%d,%d), want (20,60,3,1)", h, w, c, n)
	}
}

func TestDispatchPackedModeProducesSingleTensor(t *testing.T) {
	reader := newFakeReader(map[string]Shape{
		"a.jpg": {H: 80, W: 80, C: 3},
		"b.jpg": {H: 80, W: 80, C: 3},
		"c.jpg": {H: 80, W: 80, C: 3},
	}, nil)
	d, _ := newTestDispatcher(t, 2, reader)

	cfg := DefaultConfig()
	cfg.NumThreads = 2
	cfg.Pack = true
	cfg.ResizeMode = ResizeFixed
	cfg.FixedHeight, cfg.FixedWidth = 32, 32

	res, err := d.Dispatch([]string{"a.jpg", "b.jpg", "c.jpg"}, cfg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Pack == nil {
		t.Fatalf("packed mode returned no packed tensor")
	}
	h, w, c, n := res.Pack.Shape()
	if h != 32 || w != 32 || c != 3 || n != 3 {
		t.Fatalf("pack shape = (%d,%d,%d,%d), want (32,32,3,3)", h, w, c, n)
	}
	if res.PerItem != nil {
		t.Fatalf("packed mode also returned per-item tensors")
	}
}

func TestDispatchReusesInFlightBatchOnExactFilenameMatch(t *testing.T) {
	reader := newFakeReader(map[string]Shape{
		"a.jpg": {H: 16, W: 16, C: 3},
	}, nil)
	d, alloc := newTestDispatcher(t, 1, reader)

	cfg := DefaultConfig()
	if _, err := d.Dispatch([]string{"a.jpg"}, cfg); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	callsAfterFirst := alloc.hostCalls

	if _, err := d.Dispatch([]string{"a.jpg"}, cfg); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if alloc.hostCalls != callsAfterFirst {
		t.Fatalf("second dispatch with identical filenames re-allocated: hostCalls %d -> %d", callsAfterFirst, alloc.hostCalls)
	}
}

func TestDispatchIndividualModeFetchesRealPixels(t *testing.T) {
	reader := newFakeReader(map[string]Shape{
		"a.jpg": {H: 4, W: 4, C: 3},
	}, nil)
	d, _ := newTestDispatcher(t, 1, reader)

	res, err := d.Dispatch([]string{"a.jpg"}, DefaultConfig())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := float32(len("a.jpg") % 251)
	for i, v := range res.PerItem[0].Data() {
		if v != want {
			t.Fatalf("pixel %d = %v, want %v (fetch phase never ran)", i, v, want)
		}
	}
}

func TestDispatchRebuildsOnDifferentFilenames(t *testing.T) {
	reader := newFakeReader(map[string]Shape{
		"a.jpg": {H: 16, W: 16, C: 3},
		"b.jpg": {H: 16, W: 16, C: 3},
	}, nil)
	d, alloc := newTestDispatcher(t, 1, reader)

	cfg := DefaultConfig()
	if _, err := d.Dispatch([]string{"a.jpg"}, cfg); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	callsAfterFirst := alloc.hostCalls

	if _, err := d.Dispatch([]string{"b.jpg"}, cfg); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if alloc.hostCalls <= callsAfterFirst {
		t.Fatalf("dispatch with a different filename list did not allocate: hostCalls stayed at %d", alloc.hostCalls)
	}
}

func TestDispatchIsolatesPerFileErrors(t *testing.T) {
	reader := newFakeReader(
		map[string]Shape{"good.jpg": {H: 16, W: 16, C: 3}},
		map[string]error{"bad.jpg": errDecodeBoom},
	)
	d, _ := newTestDispatcher(t, 2, reader)

	cfg := DefaultConfig()
	cfg.NumThreads = 2
	res, err := d.Dispatch([]string{"good.jpg", "bad.jpg"}, cfg)
	if err != nil {
		t.Fatalf("Dispatch returned a top-level error for a per-file failure: %v", err)
	}
	if res.PerItem[0] == nil {
		t.Fatalf("good.jpg's tensor is nil")
	}
	if res.PerItem[1] != nil {
		t.Fatalf("bad.jpg's tensor should be nil after a read failure")
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected a warning summarizing the per-file failure")
	}
}

func TestDispatchPrefetchOnlyReturnsNilResult(t *testing.T) {
	reader := newFakeReader(map[string]Shape{"a.jpg": {H: 8, W: 8, C: 3}}, nil)
	d, _ := newTestDispatcher(t, 1, reader)

	cfg := DefaultConfig()
	cfg.Prefetch = true
	res, err := d.Dispatch([]string{"a.jpg"}, cfg)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res != nil {
		t.Fatalf("prefetch-only dispatch returned a non-nil result")
	}
}

func TestDispatchRejectsInvalidConfig(t *testing.T) {
	reader := newFakeReader(map[string]Shape{"a.jpg": {H: 8, W: 8, C: 3}}, nil)
	d, _ := newTestDispatcher(t, 1, reader)

	cfg := DefaultConfig()
	cfg.Pack = true // pack without a fixed resize is invalid
	_, err := d.Dispatch([]string{"a.jpg"}, cfg)
	if err == nil {
		t.Fatalf("Dispatch accepted an invalid config")
	}
	if !IsConfig(err) {
		t.Fatalf("Dispatch error = %v, want a config-kind error", err)
	}
}

var errDecodeBoom = &pipelineTestErr{"boom"}

type pipelineTestErr struct{ msg string }

func (e *pipelineTestErr) Error() string { return e.msg }
