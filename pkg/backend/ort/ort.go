// Package ort runs exported graphs with onnxruntime to confirm they load
// and produce aligned detections.
package ort

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/trolo/export/pkg/util/console"
)

// Inputs is one synthetic batch for the graph.
type Inputs struct {
	Images  []float32
	Batch   int
	Height  int
	Width   int
	Queries int
}

// Outputs are the detector outputs read back from the session.
type Outputs struct {
	Labels []int64
	Boxes  []float32
	Scores []float32
}

// Runner executes a graph once.
type Runner interface {
	Run(ctx context.Context, graph string, in *Inputs) (*Outputs, error)
}

// Runtime runs graphs on the CPU execution provider.
type Runtime struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default name.
	LibraryPath string

	once    sync.Once
	initErr error
}

func (r *Runtime) init() error {
	r.once.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if r.LibraryPath != "" {
			ort.SetSharedLibraryPath(r.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			r.initErr = fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	})
	return r.initErr
}

// Close releases the onnxruntime environment.
func (r *Runtime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

func (r *Runtime) Run(ctx context.Context, graph string, in *Inputs) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if want := in.Batch * 3 * in.Height * in.Width; len(in.Images) != want {
		return nil, fmt.Errorf("expected %d image values, got %d", want, len(in.Images))
	}
	if err := r.init(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", graph, err)
	}
	for _, info := range outputs {
		console.Debugf("onnxruntime output %s %v", info.Name, info.Dimensions)
	}

	batch := int64(in.Batch)
	queries := int64(in.Queries)

	images, err := ort.NewTensor(ort.NewShape(batch, 3, int64(in.Height), int64(in.Width)), in.Images)
	if err != nil {
		return nil, err
	}
	defer images.Destroy()
	inputNames := []string{"images"}
	inputValues := []ort.ArbitraryTensor{images}

	// post-processing graphs also take the original image sizes
	withSizes := false
	for _, info := range inputs {
		console.Debugf("onnxruntime input %s %v", info.Name, info.Dimensions)
		withSizes = withSizes || info.Name == "orig_target_sizes"
	}
	if withSizes {
		sizes := make([]int64, 0, 2*in.Batch)
		for i := 0; i < in.Batch; i++ {
			sizes = append(sizes, int64(in.Height), int64(in.Width))
		}
		origSizes, err := ort.NewTensor(ort.NewShape(batch, 2), sizes)
		if err != nil {
			return nil, err
		}
		defer origSizes.Destroy()
		inputNames = append(inputNames, "orig_target_sizes")
		inputValues = append(inputValues, origSizes)
	}

	labels, err := ort.NewEmptyTensor[int64](ort.NewShape(batch, queries))
	if err != nil {
		return nil, err
	}
	defer labels.Destroy()
	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, queries, 4))
	if err != nil {
		return nil, err
	}
	defer boxes.Destroy()
	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, queries))
	if err != nil {
		return nil, err
	}
	defer scores.Destroy()

	session, err := ort.NewAdvancedSession(graph,
		inputNames, []string{"labels", "boxes", "scores"},
		inputValues, []ort.ArbitraryTensor{labels, boxes, scores},
		nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnxruntime session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return &Outputs{
		Labels: append([]int64(nil), labels.GetData()...),
		Boxes:  append([]float32(nil), boxes.GetData()...),
		Scores: append([]float32(nil), scores.GetData()...),
	}, nil
}
