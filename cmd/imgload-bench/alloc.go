/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import "github.com/cortexlabs/imgload/pkg/imgload"

// sliceTensor is the simplest possible imgload.Tensor: a plain []float32.
// Real callers bind imgload.Allocator to their own tensor/array library
// instead (SPEC_FULL.md §1's "caller's tensor/array allocator" boundary);
// this binding exists only so the demonstration binary has something
// concrete to run against.
type sliceTensor struct {
	data       []float32
	h, w, c, n int
}

func (t *sliceTensor) Data() []float32          { return t.data }
func (t *sliceTensor) Shape() (h, w, c, n int)  { return t.h, t.w, t.c, t.n }
func (t *sliceTensor) Release()                 {}

func (t *sliceTensor) Slice(i int) imgload.Tensor {
	stride := t.h * t.w * t.c
	return &sliceTensor{data: t.data[i*stride : (i+1)*stride], h: t.h, w: t.w, c: t.c, n: 1}
}

type sliceAllocator struct{}

func (sliceAllocator) NewHost(h, w, c, n int) (imgload.Tensor, error) {
	return &sliceTensor{data: make([]float32, h*w*c*n), h: h, w: w, c: c, n: n}, nil
}

func (sliceAllocator) NewDevice(h, w, c, n int, _ imgload.Stream) (imgload.Tensor, error) {
	return &sliceTensor{data: make([]float32, h*w*c*n), h: h, w: w, c: c, n: n}, nil
}

// noGPUStream is a no-op Stream: CopyAsync runs synchronously in place. It
// stands in for a real CUDA/ROCm binding, which imgload treats as an
// external collaborator (SPEC_FULL.md §1).
type noGPUStream struct{}

func (noGPUStream) CopyAsync(dst imgload.Tensor, src []float32) error {
	copy(dst.Data(), src)
	return nil
}

func (noGPUStream) Synchronize() error { return nil }
func (noGPUStream) Device() int        { return 0 }

func noGPUStreamFactory(device int) (imgload.Stream, error) {
	return noGPUStream{}, nil
}
