/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"fmt"
	"sync"
)

// fakeReader is a deterministic, in-memory ImageReader: every path not
// listed in fail decodes to a uniform-valued image whose shape comes from
// shapes and whose fill value is derived from the path's length, so tests
// can assert on exact pixel values without touching the filesystem.
type fakeReader struct {
	shapes map[string]Shape
	fail   map[string]error
}

func newFakeReader(shapes map[string]Shape, fail map[string]error) *fakeReader {
	return &fakeReader{shapes: shapes, fail: fail}
}

func (r *fakeReader) ProbeShape(path string) (Shape, error) {
	if err, ok := r.fail[path]; ok {
		return Shape{}, err
	}
	s, ok := r.shapes[path]
	if !ok {
		return Shape{}, fmt.Errorf("fakeReader: unknown path %q", path)
	}
	return s, nil
}

func (r *fakeReader) DecodePixels(path string, out *BufferPool) (Shape, []float32, error) {
	if err, ok := r.fail[path]; ok {
		return Shape{}, nil, err
	}
	s, ok := r.shapes[path]
	if !ok {
		return Shape{}, nil, fmt.Errorf("fakeReader: unknown path %q", path)
	}
	n := s.C * s.H * s.W
	buf := out.Get(0, n)
	fill := float32(len(path) % 251)
	for i := range buf {
		buf[i] = fill
	}
	return s, buf[:n], nil
}

// fakeTensor is an Allocator-independent, in-memory Tensor backed by a
// plain slice, mirroring cmd/imgload-bench's sliceAllocator but kept
// private to the test package so the two don't need to share a type.
type fakeTensor struct {
	data       []float32
	h, w, c, n int
}

func (t *fakeTensor) Data() []float32         { return t.data }
func (t *fakeTensor) Shape() (h, w, c, n int) { return t.h, t.w, t.c, t.n }
func (t *fakeTensor) Release()                {}

func (t *fakeTensor) Slice(i int) Tensor {
	stride := t.h * t.w * t.c
	return &fakeTensor{data: t.data[i*stride : (i+1)*stride], h: t.h, w: t.w, c: t.c, n: 1}
}

type fakeAllocator struct {
	mu        sync.Mutex
	hostCalls int
	devCalls  int
}

func (a *fakeAllocator) NewHost(h, w, c, n int) (Tensor, error) {
	a.mu.Lock()
	a.hostCalls++
	a.mu.Unlock()
	return &fakeTensor{data: make([]float32, h*w*c*n), h: h, w: w, c: c, n: n}, nil
}

func (a *fakeAllocator) NewDevice(h, w, c, n int, _ Stream) (Tensor, error) {
	a.mu.Lock()
	a.devCalls++
	a.mu.Unlock()
	return &fakeTensor{data: make([]float32, h*w*c*n), h: h, w: w, c: c, n: n}, nil
}

// fakeStream records every async copy so tests can assert the pack-upload
// fired exactly once per Sync, without a real device runtime.
type fakeStream struct {
	mu      sync.Mutex
	copies  int
	synced  int
	device  int
	failSync bool
}

func (s *fakeStream) CopyAsync(dst Tensor, src []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copies++
	copy(dst.Data(), src)
	return nil
}

func (s *fakeStream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced++
	if s.failSync {
		return fmt.Errorf("fakeStream: synchronize failed")
	}
	return nil
}

func (s *fakeStream) Device() int { return s.device }

func fakeStreamFactory(stream *fakeStream) StreamFactory {
	return func(device int) (Stream, error) {
		stream.device = device
		return stream, nil
	}
}
