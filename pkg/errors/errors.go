package errors

import (
	"errors"
	"fmt"
)

const (
	CodeModelNotFound     = "MODEL_NOT_FOUND"
	CodeConfigNotFound    = "CONFIG_NOT_FOUND"
	CodeMissingWeights    = "MISSING_WEIGHTS"
	CodeStateMismatch     = "STATE_MISMATCH"
	CodeInvalidGraph      = "INVALID_GRAPH"
	CodeEngineBuild       = "ENGINE_BUILD"
	CodeNotImplemented    = "NOT_IMPLEMENTED"
	CodeDeviceMismatch    = "DEVICE_MISMATCH"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
)

// Types ////////////////////////////////////////

type CodedError interface {
	Code() string
}

type codedError struct {
	code string
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *codedError) Code() string {
	return e.code
}

func (e *codedError) Unwrap() error {
	return e.err
}

func newCoded(code string, cause error, format string, v ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, v...), err: cause}
}

// Error Creators ///////////////////////////////

// The model identifier did not resolve to a checkpoint file
func ModelNotFound(format string, v ...interface{}) error {
	return newCoded(CodeModelNotFound, nil, format, v...)
}

// No explicit, embedded or inferred config could be found
func ConfigNotFound(format string, v ...interface{}) error {
	return newCoded(CodeConfigNotFound, nil, format, v...)
}

// The checkpoint has neither an EMA nor a plain model weight entry
func MissingWeights(format string, v ...interface{}) error {
	return newCoded(CodeMissingWeights, nil, format, v...)
}

// The weights do not fit the architecture built from the config
func StateMismatch(cause error, format string, v ...interface{}) error {
	return newCoded(CodeStateMismatch, cause, format, v...)
}

// An exported graph failed structural validation
func InvalidGraph(cause error, format string, v ...interface{}) error {
	return newCoded(CodeInvalidGraph, cause, format, v...)
}

// Engine compilation failed. The backend cause is always kept.
func EngineBuild(cause error, format string, v ...interface{}) error {
	return newCoded(CodeEngineBuild, cause, format, v...)
}

func NotImplemented(format string, v ...interface{}) error {
	return newCoded(CodeNotImplemented, nil, format, v...)
}

// The requested backend cannot run on the configured device
func DeviceMismatch(format string, v ...interface{}) error {
	return newCoded(CodeDeviceMismatch, nil, format, v...)
}

func UnsupportedFormat(format string, v ...interface{}) error {
	return newCoded(CodeUnsupportedFormat, nil, format, v...)
}

// Helpers //////////////////////////////////////

func IsModelNotFound(err error) bool {
	return Code(err) == CodeModelNotFound
}

func IsConfigNotFound(err error) bool {
	return Code(err) == CodeConfigNotFound
}

func IsNotImplemented(err error) bool {
	return Code(err) == CodeNotImplemented
}

// Return the error code of the first coded error in the chain, or the empty string
func Code(err error) string {
	var cerr CodedError
	if errors.As(err, &cerr) {
		return cerr.Code()
	}

	return ""
}
