/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

// Stream is an asynchronous device-side command queue. imgload submits every
// per-batch device copy on the same stream, relying on the stream's implicit
// ordering rather than any synchronization of its own. It is an external
// collaborator: creation, async copy, and synchronization primitives are
// assumed to be provided by the caller's GPU runtime binding.
type Stream interface {
	// CopyAsync enqueues a host->device copy of src into dst and returns
	// immediately; dst and src must have equal length. Errors raised by the
	// copy itself (as opposed to errors from a prior Synchronize) surface
	// through Synchronize.
	CopyAsync(dst Tensor, src []float32) error

	// Synchronize blocks until every copy enqueued so far has completed (or
	// failed) and returns the first error encountered, if any.
	Synchronize() error

	// Device identifies which physical device this stream targets, used by
	// a worker to decide whether it must adopt a different device before
	// touching the batch's tensors (§4.G step 1).
	Device() int
}

// StreamFactory creates a new stream lazily, with a non-blocking flag, the
// first time a batch enters GPU mode.
type StreamFactory func(device int) (Stream, error)
