package export

import (
	"strings"

	"github.com/trolo/export/pkg/errors"
)

// Format is an export target. The zero value is not a valid format.
type Format int

const (
	FormatUnknown Format = iota
	FormatONNX
	FormatOpenVINO
	FormatTensorRT
)

var formatNames = map[string]Format{
	"onnx":     FormatONNX,
	"openvino": FormatOpenVINO,
	"engine":   FormatTensorRT,
	"tensorrt": FormatTensorRT,
}

// ParseFormat normalises s (trimmed, case-insensitive) to a Format.
// "engine" and "tensorrt" name the same target.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return FormatUnknown, errors.UnsupportedFormat("export format is missing, expected one of onnx, openvino, engine")
	}
	f, ok := formatNames[name]
	if !ok {
		return FormatUnknown, errors.UnsupportedFormat("unsupported export format %q, expected one of onnx, openvino, engine", s)
	}
	return f, nil
}

func (f Format) String() string {
	switch f {
	case FormatONNX:
		return "onnx"
	case FormatOpenVINO:
		return "openvino"
	case FormatTensorRT:
		return "engine"
	default:
		return "unknown"
	}
}
