package model

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/arch/archtest"
	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/tensor"
)

func TestParseDevice(t *testing.T) {
	for input, expected := range map[string]Device{
		"":        {Type: DeviceCPU},
		"cpu":     {Type: DeviceCPU},
		" CUDA ":  {Type: DeviceCUDA},
		"cuda:1":  {Type: DeviceCUDA, Index: 1},
		"cuda:10": {Type: DeviceCUDA, Index: 10},
	} {
		dev, err := ParseDevice(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, dev, input)
	}
	for _, input := range []string{"tpu", "cuda:x", "cuda:-1"} {
		_, err := ParseDevice(input)
		require.Error(t, err, input)
	}
}

func TestDeviceString(t *testing.T) {
	require.Equal(t, "cpu", Device{}.String())
	require.Equal(t, "cuda:0", Device{Type: DeviceCUDA}.String())
	require.False(t, Device{}.IsAccelerator())
	require.True(t, Device{Type: DeviceCUDA, Index: 2}.IsAccelerator())
}

func TestDecode(t *testing.T) {
	out := &RawOutputs{
		Batch: 1, Queries: 2, Classes: 3,
		Logits: []float32{0, 2, 1, 5, 5, 0},
		Boxes:  []float32{0, 0, 1, 1, 0.5, 0.5, 1, 1},
	}
	det, err := Decode{}.Forward(out)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 0}, det.Labels)
	require.InDelta(t, 0.665241, det.Scores[0], 1e-4)
	require.InDelta(t, 0.498321, det.Scores[1], 1e-4)
	require.Equal(t, out.Boxes, det.Boxes)
}

func TestDecodeRejectsBadLogits(t *testing.T) {
	_, err := Decode{}.Forward(&RawOutputs{Batch: 1, Queries: 2, Classes: 3, Logits: make([]float32, 5)})
	require.Error(t, err)

	_, err = Decode{}.Forward(&RawOutputs{Batch: 1, Queries: 1, Classes: 2, Logits: make([]float32, 2), Boxes: make([]float32, 3)})
	require.ErrorContains(t, err, "misaligned")
}

func TestDecodeCheck(t *testing.T) {
	out := &RawOutputs{
		Batch: 1, Queries: 2, Classes: 3,
		Logits: []float32{0, 2, 1, 5, 5, 0},
		Boxes:  make([]float32, 8),
	}
	det, err := Decode{}.Forward(out)
	require.NoError(t, err)
	require.NoError(t, Decode{}.Check(det, 3))

	det.Scores[1] = 0.2
	require.ErrorContains(t, Decode{}.Check(det, 3), "score")

	det.Scores[1] = 0.5
	det.Labels[0] = 3
	require.ErrorContains(t, Decode{}.Check(det, 3), "label 3")
}

func TestPassthrough(t *testing.T) {
	out := &RawOutputs{Batch: 1, Queries: 1, Labels: []int64{4}, Boxes: []float32{1, 2, 3, 4}, Scores: []float32{0.9}}
	det, err := Passthrough{}.Forward(out)
	require.NoError(t, err)
	require.Equal(t, []int64{4}, det.Labels)

	out.Scores = nil
	_, err = Passthrough{}.Forward(out)
	require.ErrorContains(t, err, "misaligned")
}

func TestNewInferenceModule(t *testing.T) {
	m, err := NewInferenceModule(config.PostprocessPassthrough)
	require.NoError(t, err)
	require.Equal(t, "passthrough", m.Name())
	m, err = NewInferenceModule("")
	require.NoError(t, err)
	require.Equal(t, "decode", m.Name())
	_, err = NewInferenceModule("nms")
	require.Error(t, err)
}

func record(state tensor.StateDict) *checkpoint.Record {
	return &checkpoint.Record{Path: "/ckpts/dfine_n.pth", Kind: checkpoint.KindWeights, Tensors: state, Metadata: map[string]string{}}
}

func TestBuildPrefersEMA(t *testing.T) {
	cfg := archtest.Config(config.ModelDFINE)
	good := archtest.State(cfg)
	state := archtest.Prefixed(good, checkpoint.EMAPrefix)
	// the plain weights are deliberately incompatible
	for k, v := range archtest.Prefixed(tensor.StateDict{"decoder.enc_score_head.weight": tensor.Rand(rand.New(rand.NewSource(3)), []int{1})}, checkpoint.ModelPrefix) {
		state[k] = v
	}

	m, err := Build(record(state), cfg, "")
	require.NoError(t, err)
	require.Equal(t, checkpoint.SourceEMA, m.WeightSource)
	require.Equal(t, Device{Type: DeviceCPU}, m.Device)
	require.False(t, cfg.Backbone.Pretrained)
	require.Equal(t, "decode", m.Postprocess.Name())
	require.NotContains(t, m.State, "decoder.denoising_class_embed.weight")
}

func TestBuildFallsBackToModel(t *testing.T) {
	cfg := archtest.Config(config.ModelRTDETR)
	m, err := Build(record(archtest.Prefixed(archtest.State(cfg), checkpoint.ModelPrefix)), cfg, "cuda:0")
	require.NoError(t, err)
	require.Equal(t, checkpoint.SourceModel, m.WeightSource)
	require.True(t, m.Device.IsAccelerator())
}

func TestBuildMissingWeights(t *testing.T) {
	cfg := archtest.Config(config.ModelRTDETR)
	_, err := Build(record(archtest.Prefixed(archtest.State(cfg), "optimizer.")), cfg, "")
	require.Equal(t, errors.CodeMissingWeights, errors.Code(err))
}

func TestBuildStateMismatch(t *testing.T) {
	cfg := archtest.Config(config.ModelRTDETR)
	state := archtest.State(cfg)
	cfg.NumClasses = 7
	_, err := Build(record(archtest.Prefixed(state, checkpoint.EMAPrefix)), cfg, "")
	require.Equal(t, errors.CodeStateMismatch, errors.Code(err))
}

func TestBuildGraph(t *testing.T) {
	m, err := Build(&checkpoint.Record{Path: "/m/model.onnx", Kind: checkpoint.KindGraph}, nil, "cuda")
	require.NoError(t, err)
	require.True(t, m.IsGraph())
	require.Equal(t, "/m/model.onnx", m.GraphPath)

	_, err = m.Stage(t.TempDir())
	require.ErrorIs(t, err, errors.ErrGraphSource)
}

func TestStage(t *testing.T) {
	cfg := archtest.Config(config.ModelDFINE)
	m, err := Build(record(archtest.Prefixed(archtest.State(cfg), checkpoint.EMAPrefix)), cfg, "")
	require.NoError(t, err)

	staged, err := m.Stage(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "dfine_n_deploy.safetensors", filepath.Base(staged))

	rec, err := checkpoint.Load(staged)
	require.NoError(t, err)
	require.Equal(t, m.State.Keys(), rec.Tensors.Keys())
	require.Equal(t, "dfine", rec.Metadata[MetaArch])
	require.Equal(t, "ema", rec.Metadata[MetaWeights])
	require.Equal(t, "5", rec.Metadata[MetaNumQueries])

	blob, ok := rec.EmbeddedConfig()
	require.True(t, ok)
	staged2, err := config.Parse(blob, staged)
	require.NoError(t, err)
	require.False(t, staged2.Backbone.Pretrained)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := archtest.Config(config.ModelRTDETR)
	blob, err := cfg.Marshal()
	require.NoError(t, err)
	p := filepath.Join(dir, "custom.pth")
	require.NoError(t, checkpoint.Save(p, archtest.Prefixed(archtest.State(cfg), checkpoint.EMAPrefix), map[string]string{checkpoint.ConfigKey: string(blob)}))

	m, err := Open(context.Background(), &checkpoint.Resolver{CacheDir: dir}, p, "", "cpu")
	require.NoError(t, err)
	require.Equal(t, config.SourceEmbedded, m.Config.Source)
	require.Equal(t, "rtdetr", m.Arch)
}

func TestOpenGraph(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(p, []byte("graph"), 0o644))
	m, err := Open(context.Background(), &checkpoint.Resolver{CacheDir: dir}, p, "", "cuda")
	require.NoError(t, err)
	require.True(t, m.IsGraph())
	require.Nil(t, m.Config)
}
