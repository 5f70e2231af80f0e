/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

// ImageReader decodes one image format. It is an external collaborator:
// imgload assumes JPEG/PNG decoding is available as this black box and does
// no format-detection heuristics of its own (see Non-goals). Each worker
// owns its own ImageReader; implementations need not be safe for concurrent
// use by multiple goroutines.
type ImageReader interface {
	// ProbeShape returns the (height, width, channels) of the image at path
	// without fully decoding its pixels.
	ProbeShape(path string) (Shape, error)

	// DecodePixels decodes the full image at path into planar float32
	// pixels (channel-major: C planes of H*W floats each, in the reader's
	// native value range) written into scratch buffer 0 of out, growing it
	// as needed via out.Get. It returns the shape actually decoded (which
	// must match the shape ProbeShape reported for the same path) and the
	// slice view of out's buffer 0 holding the decoded pixels.
	DecodePixels(path string, out *BufferPool) (Shape, []float32, error)
}

// ReaderFactory constructs one ImageReader per worker, so that no decoder
// state is shared across worker goroutines.
type ReaderFactory func() ImageReader
