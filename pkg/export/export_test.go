package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/arch/archtest"
	"github.com/trolo/export/pkg/backend/bridge"
	"github.com/trolo/export/pkg/backend/ort"
	"github.com/trolo/export/pkg/backend/tensorrt"
	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/model"
	"github.com/trolo/export/pkg/onnx/onnxtest"
)

type fakeBridge struct {
	jobs []bridge.Job
	// checkpoints records whether the staged checkpoint existed during the job
	staged []bool
	// skipWrite makes the bridge report success without writing anything
	skipWrite bool
	// broken writes a graph that fails the structural check
	broken bool
}

func (b *fakeBridge) Run(ctx context.Context, job *bridge.Job) (string, error) {
	b.jobs = append(b.jobs, *job)
	_, err := os.Stat(job.Checkpoint)
	b.staged = append(b.staged, err == nil)
	if b.skipWrite {
		return job.Output, nil
	}
	switch job.Task {
	case bridge.TaskONNX:
		var batch int64
		if job.DynamicAxes == nil {
			batch = int64(job.InputShape[0])
		}
		m := onnxtest.Detector(batch, int64(job.InputShape[2]), int64(job.InputShape[3]), int64(job.Opset))
		if b.broken {
			m.Graph.Nodes[0].Inputs[0] = "undefined"
		}
		return job.Output, os.WriteFile(job.Output, m.Marshal(), 0o644)
	case bridge.TaskOpenVINO:
		if err := os.WriteFile(job.Output, []byte("<net/>"), 0o644); err != nil {
			return "", err
		}
		return job.Output, os.WriteFile(filepath.Join(filepath.Dir(job.Output), "dfine_n.bin"), []byte{0}, 0o644)
	}
	return "", nil
}

type fakeSimplifier struct {
	calls  int
	broken bool
}

func (s *fakeSimplifier) Simplify(ctx context.Context, in string, out string) error {
	s.calls++
	if s.broken {
		return os.WriteFile(out, []byte{0x08}, 0o644)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

type fakeRuntime struct {
	inputs []*ort.Inputs
	out    *ort.Outputs
}

func (r *fakeRuntime) Run(ctx context.Context, graph string, in *ort.Inputs) (*ort.Outputs, error) {
	r.inputs = append(r.inputs, in)
	return r.out, nil
}

type fakeBuilder struct {
	engine  []byte
	err     error
	config  *tensorrt.BuilderConfig
	network *tensorrt.Network
	builds  int
}

func (b *fakeBuilder) CreateNetwork(flags tensorrt.NetworkFlag) *tensorrt.Network {
	b.network = &tensorrt.Network{Flags: flags}
	return b.network
}

func (b *fakeBuilder) CreateBuilderConfig() *tensorrt.BuilderConfig {
	b.config = &tensorrt.BuilderConfig{}
	return b.config
}

func (b *fakeBuilder) BuildSerializedNetwork(ctx context.Context, network *tensorrt.Network, config *tensorrt.BuilderConfig) ([]byte, error) {
	b.builds++
	return b.engine, b.err
}

type harness struct {
	bridge     *fakeBridge
	simplifier *fakeSimplifier
	runtime    *fakeRuntime
	builder    *fakeBuilder
	factories  int
	dispatcher *Dispatcher
}

func newHarness() *harness {
	h := &harness{
		bridge:     &fakeBridge{},
		simplifier: &fakeSimplifier{},
		runtime:    &fakeRuntime{},
		builder:    &fakeBuilder{engine: []byte("serialized engine")},
	}
	onnxExporter := &ONNXExporter{Bridge: h.bridge, Simplifier: h.simplifier, Runtime: h.runtime}
	h.dispatcher = &Dispatcher{
		ONNX:     onnxExporter,
		OpenVINO: &OpenVINOExporter{Bridge: h.bridge},
		TensorRT: &TensorRTExporter{
			ONNX: onnxExporter,
			NewBuilder: func(device model.Device, logger *tensorrt.Logger) tensorrt.Builder {
				h.factories++
				return h.builder
			},
		},
		Metrics: NewMetrics(),
	}
	return h
}

func (h *harness) backendCalls() int {
	return len(h.bridge.jobs) + h.simplifier.calls + len(h.runtime.inputs) + h.factories + h.builder.builds
}

func newModel(t *testing.T, device string) *model.DeployableModel {
	t.Helper()
	cfg := archtest.Config(config.ModelDFINE)
	rec := &checkpoint.Record{
		Path:     filepath.Join(t.TempDir(), "dfine_n.pth"),
		Kind:     checkpoint.KindWeights,
		Tensors:  archtest.Prefixed(archtest.State(cfg), checkpoint.EMAPrefix),
		Metadata: map[string]string{},
	}
	m, err := model.Build(rec, cfg, device)
	require.NoError(t, err)
	return m
}

func newGraphModel(t *testing.T, device string) *model.DeployableModel {
	t.Helper()
	p := filepath.Join(t.TempDir(), "detector.onnx")
	require.NoError(t, os.WriteFile(p, onnxtest.Detector(1, 640, 640, 16).Marshal(), 0o644))
	m, err := model.Build(&checkpoint.Record{Path: p, Kind: checkpoint.KindGraph}, nil, device)
	require.NoError(t, err)
	return m
}
