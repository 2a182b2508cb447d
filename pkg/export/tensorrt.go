package export

import (
	"context"
	"fmt"

	"github.com/trolo/export/pkg/backend/tensorrt"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/model"
	tpath "github.com/trolo/export/pkg/path"
	"github.com/trolo/export/pkg/util/console"
	"github.com/trolo/export/pkg/util/files"
)

// BuilderFactory creates a TensorRT builder for a device.
type BuilderFactory func(device model.Device, logger *tensorrt.Logger) tensorrt.Builder

// TensorRTExporter compiles an engine, exporting to ONNX first unless the
// model already is a graph. It writes <stem>_<dtype>.engine.
type TensorRTExporter struct {
	ONNX       *ONNXExporter
	NewBuilder BuilderFactory
	Verbose    bool

	// WorkspaceMiB caps builder scratch memory. Zero keeps the builder default.
	WorkspaceMiB int
}

func (e *TensorRTExporter) Export(ctx context.Context, m *model.DeployableModel, req Request) (*Artifact, error) {
	if !m.Device.IsAccelerator() {
		return nil, errors.DeviceMismatch("TensorRT export requires a GPU device but the model is on %s; pass a device such as --device cuda:0", m.Device)
	}
	req = req.withDefaults()

	graph := m.GraphPath
	if !m.IsGraph() {
		onnxReq := req
		onnxReq.Format = FormatONNX
		onnxReq.Dynamic = false
		onnxReq.Simplify = false
		onnxReq.Verify = false
		artifact, err := e.ONNX.Export(ctx, m, onnxReq)
		if err != nil {
			return nil, err
		}
		graph = artifact.Path
	}

	logger := tensorrt.NewLogger(e.Verbose)
	builder := e.NewBuilder(m.Device, logger)
	network := builder.CreateNetwork(tensorrt.ExplicitBatch)
	parser := tensorrt.NewOnnxParser(network, logger)
	if err := parser.ParseFromFile(graph); err != nil {
		return nil, fmt.Errorf("failed to load ONNX file %s: %w", graph, err)
	}

	config := builder.CreateBuilderConfig()
	config.WorkspaceMiB = e.WorkspaceMiB
	switch req.Precision {
	case FP16:
		config.SetFlag(tensorrt.FP16)
	case INT8:
		config.SetFlag(tensorrt.INT8)
		return nil, errors.NotImplemented("INT8 calibration is not yet implemented")
	}

	engine, err := builder.BuildSerializedNetwork(ctx, network, config)
	if err != nil {
		return nil, errors.EngineBuild(err, "engine serialization failed")
	}
	if len(engine) == 0 {
		return nil, errors.EngineBuild(fmt.Errorf("builder returned an empty engine"), "failed to build TensorRT engine")
	}

	output, err := files.WriteFile(engine, tpath.Sibling(m.CheckpointPath, "_"+string(req.Precision)+".engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to write TensorRT engine: %w", err)
	}
	console.Infof("TRT Engine saved to file: %s", output)

	return &Artifact{
		Path:   output,
		Format: FormatTensorRT,
		Metadata: Metadata{
			Precision:  req.Precision,
			Opset:      req.Opset,
			InputShape: req.inputShape(),
		},
	}, nil
}
