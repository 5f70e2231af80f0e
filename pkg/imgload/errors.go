// Package imgload implements an asynchronous, batched image-ingest pipeline:
// decode, resize, crop, and color-augment a list of files into a tensor (or
// list of tensors), optionally uploaded to a GPU, while hiding the decode and
// augment latency behind the caller's training step.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package imgload

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a pipeline error. See SPEC_FULL.md §7.
type Kind int

const (
	// KindConfig rejects a request before any worker is touched.
	KindConfig Kind = iota
	// KindRead is a per-file decode/probe failure, recorded on the item.
	KindRead
	// KindDevice is an async host->device copy failure.
	KindDevice
	// KindExecution is a fatal worker-pool failure.
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRead:
		return "read"
	case KindDevice:
		return "device"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// maxErrMsgLen bounds the per-item error message, per the 512-byte item.error
// field in the data model.
const maxErrMsgLen = 512

// PipelineError is the single error type produced anywhere in the pipeline.
// Configuration and Execution errors are wrapped with pkg/errors at the
// point of origin so that %+v logging carries a stack trace -- these two
// kinds should never occur in production and are worth tracing when they do.
// Read and Device errors are expected, high-frequency, and are not
// stack-wrapped.
type PipelineError struct {
	Kind Kind
	Item string // filename; the batch id for a stream-level device error from Batch.Sync; empty for config/execution errors
	err  error
}

func (e *PipelineError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("imgload: %s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("imgload: %s %q: %v", e.Kind, e.Item, e.err)
}

func (e *PipelineError) Unwrap() error { return e.err }

// Message returns the error text truncated to the item.error wire budget.
func (e *PipelineError) Message() string {
	s := e.Error()
	if len(s) > maxErrMsgLen {
		s = s[:maxErrMsgLen]
	}
	return s
}

func newConfigErr(format string, a ...any) *PipelineError {
	return &PipelineError{Kind: KindConfig, err: errors.Errorf(format, a...)}
}

func newExecutionErr(err error) *PipelineError {
	return &PipelineError{Kind: KindExecution, err: errors.WithStack(err)}
}

func newReadErr(item string, err error) *PipelineError {
	return &PipelineError{Kind: KindRead, Item: item, err: err}
}

func newDeviceErr(item string, err error) *PipelineError {
	return &PipelineError{Kind: KindDevice, Item: item, err: err}
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return hasKind(err, KindConfig) }

func hasKind(err error, k Kind) bool {
	pe, ok := err.(*PipelineError)
	return ok && pe.Kind == k
}
