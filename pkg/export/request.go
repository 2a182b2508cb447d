package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trolo/export/pkg/global"
)

// InputSize is the spatial size of the synthetic input.
type InputSize struct {
	Height int
	Width  int
}

// Square broadcasts a single size to both dimensions.
func Square(n int) InputSize {
	return InputSize{Height: n, Width: n}
}

func (s InputSize) String() string {
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

// ParseInputSize accepts "640", "640,480" and "640x480" as height then width.
// Every part must be a positive integer; empty parts are rejected.
func ParseInputSize(s string) (InputSize, error) {
	sep := "x"
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), sep)
	if len(parts) > 2 {
		return InputSize{}, fmt.Errorf("invalid input size %q, expected N or H,W", s)
	}
	sizes := make([]int, 0, 2)
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return InputSize{}, fmt.Errorf("invalid input size %q", s)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 1 {
		return Square(sizes[0]), nil
	}
	return InputSize{Height: sizes[0], Width: sizes[1]}, nil
}

// Precision is the numeric precision of the exported artifact.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
	INT8 Precision = "int8"
)

// PrecisionFromFlags maps the --fp16/--int8 switches to a precision.
func PrecisionFromFlags(fp16 bool, int8 bool) Precision {
	switch {
	case int8:
		return INT8
	case fp16:
		return FP16
	default:
		return FP32
	}
}

// Request is one export call.
type Request struct {
	Format    Format
	InputSize InputSize
	BatchSize int
	Precision Precision
	Dynamic   bool
	Simplify  bool
	Opset     int
	// Verify runs the exported ONNX graph once with onnxruntime.
	Verify bool
	// Seed fixes the synthetic input; zero uses a random seed.
	Seed int64
}

// withDefaults fills unset fields.
func (r Request) withDefaults() Request {
	if r.InputSize.Height == 0 || r.InputSize.Width == 0 {
		r.InputSize = Square(global.DefaultInputSize)
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 1
	}
	if r.Precision == "" {
		r.Precision = FP32
	}
	if r.Opset == 0 {
		r.Opset = global.DefaultOpset
	}
	return r
}

func (r Request) inputShape() []int {
	return []int{r.BatchSize, 3, r.InputSize.Height, r.InputSize.Width}
}
