package export

import (
	"context"
	"fmt"

	"github.com/trolo/export/pkg/backend/bridge"
	"github.com/trolo/export/pkg/backend/onnxsim"
	"github.com/trolo/export/pkg/backend/ort"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/model"
	"github.com/trolo/export/pkg/onnx"
	tpath "github.com/trolo/export/pkg/path"
	"github.com/trolo/export/pkg/tensor"
	"github.com/trolo/export/pkg/util"
	"github.com/trolo/export/pkg/util/console"
	"github.com/trolo/export/pkg/util/files"
)

var (
	onnxInputs  = []string{"images"}
	onnxOutputs = []string{"labels", "boxes", "scores"}
)

// ONNXExporter writes <stem>.onnx beside the checkpoint.
type ONNXExporter struct {
	Bridge     bridge.Runner
	Simplifier onnxsim.Simplifier
	// Runtime is used when a request asks for verification.
	Runtime ort.Runner
}

func (e *ONNXExporter) Export(ctx context.Context, m *model.DeployableModel, req Request) (*Artifact, error) {
	if m.IsGraph() {
		return nil, fmt.Errorf("cannot export %s to onnx: %w", m.GraphPath, errors.ErrGraphSource)
	}
	req = req.withDefaults()

	st, err := newStage()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	checkpoint, err := m.Stage(st.dir)
	if err != nil {
		return nil, err
	}
	shape := req.inputShape()
	images := tensor.Rand(newRand(req.Seed), shape)
	input, err := st.writeTensor("images.bin", images)
	if err != nil {
		return nil, err
	}

	device := m.Device.String()
	var axes map[string]map[int]string
	if req.Dynamic {
		// dynamic shapes are only exported from the CPU; the model keeps its device
		device = model.DeviceCPU
		axes = map[string]map[int]string{
			"images":            {0: "N"},
			"orig_target_sizes": {0: "N"},
		}
		if m.Device.IsAccelerator() {
			console.Infof("Dynamic export runs on cpu instead of %s", m.Device)
		}
	}

	output := tpath.Sibling(m.CheckpointPath, ".onnx")
	written, err := e.Bridge.Run(ctx, &bridge.Job{
		Task:              bridge.TaskONNX,
		Checkpoint:        checkpoint,
		Input:             input,
		InputShape:        shape,
		Output:            output,
		Device:            device,
		Opset:             req.Opset,
		InputNames:        onnxInputs,
		OutputNames:       onnxOutputs,
		DynamicAxes:       axes,
		DoConstantFolding: true,
	})
	if err != nil {
		return nil, util.WrapError(err, "onnx export failed")
	}

	artifact := &Artifact{
		Path:   written,
		Format: FormatONNX,
		Metadata: Metadata{
			DynamicAxes: axes,
			Precision:   FP32,
			Opset:       req.Opset,
			InputShape:  shape,
		},
	}
	if !files.IsFile(written) {
		return artifact, nil
	}

	want := expectation(req, axes)
	if err := checkGraph(written, want); err != nil {
		return nil, err
	}
	console.Infof("Model exported to ONNX: %s", written)

	if req.Simplify {
		console.Info("Simplifying the onnx model")
		simplified := st.path("simplified.onnx")
		if err := e.Simplifier.Simplify(ctx, written, simplified); err != nil {
			return nil, fmt.Errorf("failed to simplify %s: %w", written, err)
		}
		if err := files.ReplaceFile(simplified, written); err != nil {
			return nil, err
		}
		if err := checkGraph(written, want); err != nil {
			return nil, err
		}
		console.Infof("Simplified model exported to ONNX: %s", written)
	}

	if req.Verify {
		if err := e.verify(ctx, written, images, req, m); err != nil {
			return nil, err
		}
	}
	return artifact, nil
}

func expectation(req Request, axes map[string]map[int]string) onnx.Expectation {
	want := onnx.Expectation{Inputs: onnxInputs, Outputs: onnxOutputs, Opset: int64(req.Opset)}
	if len(axes) > 0 {
		want.DynamicAxes = map[string][]int{}
		for name, dims := range axes {
			for axis := range dims {
				want.DynamicAxes[name] = append(want.DynamicAxes[name], axis)
			}
		}
	}
	return want
}

func checkGraph(path string, want onnx.Expectation) error {
	if err := onnx.CheckFile(path, want); err != nil {
		return errors.InvalidGraph(err, "exported graph %s is invalid", path)
	}
	return nil
}

// verify runs the graph once and checks the detections line up. Graphs with
// a fused decode stage must also emit scores and labels decode can produce.
func (e *ONNXExporter) verify(ctx context.Context, graph string, images *tensor.Tensor, req Request, m *model.DeployableModel) error {
	queries := m.NumQueries
	if e.Runtime == nil {
		return fmt.Errorf("cannot verify %s: no onnxruntime configured", graph)
	}
	data, err := images.Float32()
	if err != nil {
		return err
	}
	out, err := e.Runtime.Run(ctx, graph, &ort.Inputs{
		Images:  data,
		Batch:   req.BatchSize,
		Height:  req.InputSize.Height,
		Width:   req.InputSize.Width,
		Queries: queries,
	})
	if err != nil {
		return fmt.Errorf("verification of %s failed: %w", graph, err)
	}
	det, err := model.Passthrough{}.Forward(&model.RawOutputs{
		Batch:   req.BatchSize,
		Queries: queries,
		Labels:  out.Labels,
		Boxes:   out.Boxes,
		Scores:  out.Scores,
	})
	if err != nil {
		return fmt.Errorf("verification of %s failed: %w", graph, err)
	}
	if decode, ok := m.Postprocess.(model.Decode); ok {
		if err := decode.Check(det, m.Config.NumClasses); err != nil {
			return fmt.Errorf("verification of %s failed: %w", graph, err)
		}
	}
	console.Infof("Verified %s with onnxruntime: %d detections", graph, len(det.Scores))
	return nil
}
