package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trolo/export/pkg/backend/bridge"
	"github.com/trolo/export/pkg/backend/onnxsim"
	"github.com/trolo/export/pkg/backend/ort"
	"github.com/trolo/export/pkg/backend/tensorrt"
	"github.com/trolo/export/pkg/export"
	"github.com/trolo/export/pkg/global"
	"github.com/trolo/export/pkg/model"
	"github.com/trolo/export/pkg/util/console"
)

type exportOptions struct {
	config      string
	device      string
	format      string
	inputSize   string
	batchSize   int
	fp16        bool
	int8        bool
	dynamic     bool
	simplify    bool
	opset       int
	verify      bool
	seed        int64
	workspace   int
	metricsFile string
}

// newDispatcher is replaced in tests.
var newDispatcher = func(metrics *export.Metrics, runtime ort.Runner, workspaceMiB int) *export.Dispatcher {
	onnxExporter := &export.ONNXExporter{
		Bridge:     &bridge.Python{Bin: global.PythonBin, Module: global.BridgeModule},
		Simplifier: &onnxsim.CLI{Bin: global.OnnxsimBin},
		Runtime:    runtime,
	}
	return &export.Dispatcher{
		ONNX:     onnxExporter,
		OpenVINO: &export.OpenVINOExporter{Bridge: onnxExporter.Bridge},
		TensorRT: &export.TensorRTExporter{
			ONNX: onnxExporter,
			NewBuilder: func(device model.Device, logger *tensorrt.Logger) tensorrt.Builder {
				return tensorrt.NewTrtexecBuilder(global.TrtexecBin, device.Index, logger)
			},
			Verbose:      global.Verbose,
			WorkspaceMiB: workspaceMiB,
		},
		Metrics: metrics,
	}
}

func newExportCommand() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export MODEL",
		Short: "Export a checkpoint to ONNX, OpenVINO or a TensorRT engine",
		Long: `Export a checkpoint to ONNX, OpenVINO or a TensorRT engine.

MODEL is a checkpoint path, an ONNX graph (TensorRT only) or the name of a
pretrained model such as dfine-n. The artifact is written beside the
checkpoint.`,
		Example: `  trolo-export export dfine-n --format onnx --simplify
  trolo-export export runs/best.pth --config dfine-m --format engine --device cuda:0 --fp16`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportCommand(cmd, args[0], opts)
		},
	}
	addConfigFlag(cmd, &opts.config)
	flags := cmd.Flags()
	flags.StringVarP(&opts.device, "device", "d", global.DefaultDevice, "Device to export on, e.g. cpu or cuda:0")
	flags.StringVarP(&opts.format, "format", "f", "onnx", "Export format: onnx, openvino or engine")
	flags.StringVar(&opts.inputSize, "input-size", strconv.Itoa(global.DefaultInputSize), "Input size as N or H,W")
	flags.IntVar(&opts.batchSize, "batch-size", 1, "Batch size of the example input")
	flags.BoolVar(&opts.fp16, "fp16", false, "Half precision (OpenVINO weights, TensorRT engine)")
	flags.BoolVar(&opts.int8, "int8", false, "INT8 precision (TensorRT engine)")
	flags.BoolVar(&opts.dynamic, "dynamic", false, "Dynamic batch axis (ONNX)")
	flags.BoolVar(&opts.simplify, "simplify", false, "Simplify the exported graph with onnxsim (ONNX)")
	flags.IntVar(&opts.opset, "opset", global.DefaultOpset, "ONNX opset version")
	flags.BoolVar(&opts.verify, "verify", false, "Run the exported graph once with onnxruntime (ONNX)")
	flags.Int64Var(&opts.seed, "seed", 0, "Seed for the example input, 0 picks one at random")
	flags.IntVar(&opts.workspace, "workspace", 0, "TensorRT builder workspace in MiB, 0 keeps the default")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write export metrics to this file in Prometheus textfile format")
	_ = flags.MarkHidden("seed")
	return cmd
}

func (o *exportOptions) request() (export.Request, error) {
	format, err := export.ParseFormat(o.format)
	if err != nil {
		return export.Request{}, err
	}
	size, err := export.ParseInputSize(o.inputSize)
	if err != nil {
		return export.Request{}, err
	}
	if o.batchSize <= 0 {
		return export.Request{}, fmt.Errorf("invalid batch size %d, must be positive", o.batchSize)
	}
	if o.int8 && format != export.FormatTensorRT {
		return export.Request{}, fmt.Errorf("--int8 is only supported with --format engine, not %s", format)
	}
	return export.Request{
		Format:    format,
		InputSize: size,
		BatchSize: o.batchSize,
		Precision: export.PrecisionFromFlags(o.fp16, o.int8),
		Dynamic:   o.dynamic,
		Simplify:  o.simplify,
		Opset:     o.opset,
		Verify:    o.verify,
		Seed:      o.seed,
	}, nil
}

func exportCommand(cmd *cobra.Command, identifier string, opts *exportOptions) error {
	// a bad format fails before the checkpoint is even loaded
	req, err := opts.request()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	m, err := model.Open(ctx, newResolver(), identifier, opts.config, opts.device)
	if err != nil {
		return err
	}

	var runtime ort.Runner
	if req.Verify {
		r := &ort.Runtime{LibraryPath: global.OrtLibraryPath}
		defer r.Close()
		runtime = r
	}

	metrics := export.NewMetrics()
	result, exportErr := newDispatcher(metrics, runtime, opts.workspace).Export(ctx, m, req)
	if opts.metricsFile != "" {
		if err := metrics.WriteFile(opts.metricsFile); err != nil {
			console.Warnf("Failed to write metrics to %s: %s", opts.metricsFile, err)
		}
	}
	if exportErr != nil {
		return exportErr
	}
	if !result.OK() {
		// already reported by the dispatcher
		console.Debugf("Export finished with %s", result.Severity)
	}
	return nil
}
