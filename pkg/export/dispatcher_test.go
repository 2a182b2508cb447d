package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/errors"
)

func TestDispatchRejectsFormatBeforeBackends(t *testing.T) {
	h := newHarness()
	m := newModel(t, "cuda:0")
	_, err := h.dispatcher.Export(context.Background(), m, Request{})
	require.Equal(t, errors.CodeUnsupportedFormat, errors.Code(err))
	_, err = h.dispatcher.Export(context.Background(), m, Request{Format: Format(42)})
	require.Equal(t, errors.CodeUnsupportedFormat, errors.Code(err))
	require.Zero(t, h.backendCalls())
}

func TestDispatchProducesArtifacts(t *testing.T) {
	for _, format := range []Format{FormatONNX, FormatOpenVINO, FormatTensorRT} {
		t.Run(format.String(), func(t *testing.T) {
			h := newHarness()
			m := newModel(t, "cuda:0")
			res, err := h.dispatcher.Export(context.Background(), m, Request{Format: format, InputSize: Square(64)})
			require.NoError(t, err)
			require.True(t, res.OK())
			require.Equal(t, format, res.Artifact.Format)
			require.FileExists(t, res.Artifact.Path)
			require.Equal(t, filepath.Dir(m.CheckpointPath), filepath.Dir(res.Artifact.Path))
		})
	}
}

func TestDispatchArtifactPaths(t *testing.T) {
	h := newHarness()
	m := newModel(t, "cuda:0")
	dir := filepath.Dir(m.CheckpointPath)
	for format, name := range map[Format]string{
		FormatONNX:     "dfine_n.onnx",
		FormatOpenVINO: "dfine_n.xml",
		FormatTensorRT: "dfine_n_fp32.engine",
	} {
		res, err := h.dispatcher.Export(context.Background(), m, Request{Format: format, InputSize: Square(64)})
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, name), res.Artifact.Path)
	}
}

func TestDispatchMissingArtifactIsLoggedNotRaised(t *testing.T) {
	h := newHarness()
	h.bridge.skipWrite = true
	m := newModel(t, "")
	res, err := h.dispatcher.Export(context.Background(), m, Request{Format: FormatOpenVINO})
	require.NoError(t, err)
	require.Equal(t, SeverityError, res.Severity)
	require.False(t, res.OK())
	require.Contains(t, res.Message, "dfine_n.xml")
	require.NoFileExists(t, res.Artifact.Path)
}

func TestDispatchMissingONNXSkipsValidation(t *testing.T) {
	h := newHarness()
	h.bridge.skipWrite = true
	res, err := h.dispatcher.Export(context.Background(), newModel(t, ""), Request{Format: FormatONNX, Simplify: true})
	require.NoError(t, err)
	require.Equal(t, SeverityError, res.Severity)
	require.Zero(t, h.simplifier.calls)
}

func TestDispatchMetrics(t *testing.T) {
	h := newHarness()
	m := newModel(t, "")
	_, err := h.dispatcher.Export(context.Background(), m, Request{Format: FormatONNX, InputSize: Square(32)})
	require.NoError(t, err)
	_, err = h.dispatcher.Export(context.Background(), m, Request{Format: FormatTensorRT})
	require.Error(t, err)

	p := filepath.Join(t.TempDir(), "export.prom")
	require.NoError(t, h.dispatcher.Metrics.WriteFile(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	out := string(b)
	require.Contains(t, out, `trolo_export_exports_total{format="onnx",outcome="ok"} 1`)
	require.Contains(t, out, `trolo_export_exports_total{format="engine",outcome="failed"} 1`)
	require.Contains(t, out, `trolo_export_artifact_bytes{format="onnx"}`)
	require.Contains(t, out, `trolo_export_duration_seconds_count{format="onnx"} 1`)
}

func TestDispatchWithoutMetrics(t *testing.T) {
	h := newHarness()
	h.dispatcher.Metrics = nil
	res, err := h.dispatcher.Export(context.Background(), newModel(t, ""), Request{Format: FormatONNX, InputSize: Square(32)})
	require.NoError(t, err)
	require.True(t, res.OK())
}

func TestInputSizeBroadcastBehavesLikePair(t *testing.T) {
	for _, format := range []Format{FormatONNX, FormatOpenVINO} {
		single, pair := newHarness(), newHarness()
		size, err := ParseInputSize("640")
		require.NoError(t, err)
		_, err = single.dispatcher.Export(context.Background(), newModel(t, ""), Request{Format: format, InputSize: size, Seed: 7})
		require.NoError(t, err)
		_, err = pair.dispatcher.Export(context.Background(), newModel(t, ""), Request{Format: format, InputSize: InputSize{640, 640}, Seed: 7})
		require.NoError(t, err)

		a, b := single.bridge.jobs[0], pair.bridge.jobs[0]
		require.Equal(t, []int{1, 3, 640, 640}, a.InputShape)
		require.Equal(t, b.InputShape, a.InputShape)
		require.Equal(t, filepath.Base(b.Output), filepath.Base(a.Output))
	}
}
