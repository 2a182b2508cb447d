package tensorrt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/onnx/onnxtest"
)

func writeGraph(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(p, onnxtest.Detector(1, 64, 64, 16).Marshal(), 0o644))
	return p
}

func fakeTrtexec(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "trtexec")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

// saves "engine:<args>" to the --saveEngine path
const saveArgs = `for a in "$@"; do case "$a" in --saveEngine=*) out="${a#--saveEngine=}";; esac; done
echo "engine:$*" > "$out"
`

func TestBuildSerializedNetwork(t *testing.T) {
	logger := NewLogger(false)
	b := NewTrtexecBuilder(fakeTrtexec(t, saveArgs), 1, logger)
	network := b.CreateNetwork(ExplicitBatch)
	require.NoError(t, NewOnnxParser(network, logger).ParseFromFile(writeGraph(t)))
	require.Equal(t, 3, network.Layers)
	require.Equal(t, "images", network.Inputs[0].Name)

	config := b.CreateBuilderConfig()
	config.SetFlag(FP16)
	config.WorkspaceMiB = 1024
	require.True(t, config.GetFlag(FP16))
	require.False(t, config.GetFlag(INT8))

	engine, err := b.BuildSerializedNetwork(context.Background(), network, config)
	require.NoError(t, err)
	s := string(engine)
	require.Contains(t, s, "--onnx="+network.Source)
	require.Contains(t, s, "--device=1")
	require.Contains(t, s, "--fp16")
	require.Contains(t, s, "--memPoolSize=workspace:1024")
	require.NotContains(t, s, "--verbose")
}

func TestBuildVerbose(t *testing.T) {
	logger := NewLogger(true)
	b := NewTrtexecBuilder(fakeTrtexec(t, saveArgs), 0, logger)
	network := b.CreateNetwork(ExplicitBatch)
	require.NoError(t, NewOnnxParser(network, logger).ParseFromFile(writeGraph(t)))
	engine, err := b.BuildSerializedNetwork(context.Background(), network, b.CreateBuilderConfig())
	require.NoError(t, err)
	require.Contains(t, string(engine), "--verbose")
}

func TestBuildWritesNothing(t *testing.T) {
	logger := NewLogger(false)
	b := NewTrtexecBuilder(fakeTrtexec(t, "exit 0"), 0, logger)
	network := b.CreateNetwork(ExplicitBatch)
	require.NoError(t, NewOnnxParser(network, logger).ParseFromFile(writeGraph(t)))
	engine, err := b.BuildSerializedNetwork(context.Background(), network, b.CreateBuilderConfig())
	require.NoError(t, err)
	require.Nil(t, engine)
}

func TestBuildFailure(t *testing.T) {
	logger := NewLogger(false)
	b := NewTrtexecBuilder(fakeTrtexec(t, `echo "[E] out of memory" >&2; exit 1`), 0, logger)
	network := b.CreateNetwork(ExplicitBatch)
	require.NoError(t, NewOnnxParser(network, logger).ParseFromFile(writeGraph(t)))
	_, err := b.BuildSerializedNetwork(context.Background(), network, b.CreateBuilderConfig())
	require.ErrorContains(t, err, "out of memory")
}

func TestBuildRequiresParsedExplicitBatch(t *testing.T) {
	b := NewTrtexecBuilder("trtexec", 0, NewLogger(false))
	_, err := b.BuildSerializedNetwork(context.Background(), b.CreateNetwork(ExplicitBatch), b.CreateBuilderConfig())
	require.ErrorContains(t, err, "not been parsed")

	_, err = b.BuildSerializedNetwork(context.Background(), &Network{Source: "x.onnx"}, b.CreateBuilderConfig())
	require.ErrorContains(t, err, "explicit batch")
}

func TestParseFromFileRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.onnx")
	require.NoError(t, os.WriteFile(p, []byte{0xff, 0xff}, 0o644))
	err := NewOnnxParser(&Network{}, NewLogger(false)).ParseFromFile(p)
	require.Error(t, err)
}
