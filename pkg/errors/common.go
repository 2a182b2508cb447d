package errors

import "errors"

var (
	// ErrBackendUnavailable means an external conversion tool could not be started.
	ErrBackendUnavailable = errors.New("export backend is not available")

	// ErrGraphSource means a graph-only checkpoint was asked to do something that needs weights.
	ErrGraphSource = errors.New("checkpoint is already an ONNX graph")
)
