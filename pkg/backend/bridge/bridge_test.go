package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/errors"
)

// fakePython writes a shell script that stands in for `python -m module`.
func fakePython(t *testing.T, script string) *Python {
	t.Helper()
	p := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755))
	return &Python{Bin: p, Module: "trolo.export.bridge"}
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	jobFile := filepath.Join(dir, "job.json")
	p := fakePython(t, `cat > `+jobFile+`
echo "loading weights" >&2
echo "some library banner"
echo '{"ok": true, "output": "/out/model.onnx"}'
`)
	job := &Job{
		Task:        TaskONNX,
		Checkpoint:  "/staged/ckpt.safetensors",
		Input:       "/staged/input.bin",
		InputShape:  []int{1, 3, 640, 640},
		Output:      "/out/model.onnx",
		Device:      "cpu",
		Opset:       16,
		DynamicAxes: map[string]map[int]string{"images": {0: "N"}},
	}
	out, err := p.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "/out/model.onnx", out)

	raw, err := os.ReadFile(jobFile)
	require.NoError(t, err)
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &sent))
	require.Equal(t, "onnx", sent["task"])
	require.Equal(t, map[string]interface{}{"images": map[string]interface{}{"0": "N"}}, sent["dynamic_axes"])
}

func TestRunDefaultsOutput(t *testing.T) {
	p := fakePython(t, `cat > /dev/null; echo '{"ok": true}'`)
	out, err := p.Run(context.Background(), &Job{Task: TaskOpenVINO, Output: "/out/model.xml"})
	require.NoError(t, err)
	require.Equal(t, "/out/model.xml", out)
}

func TestRunReportsBridgeError(t *testing.T) {
	p := fakePython(t, `cat > /dev/null; echo '{"ok": false, "error": "unsupported op GridSample"}'; exit 1`)
	_, err := p.Run(context.Background(), &Job{Task: TaskONNX})
	require.ErrorContains(t, err, "onnx task failed: unsupported op GridSample")
}

func TestRunCrashIncludesStderr(t *testing.T) {
	p := fakePython(t, `cat > /dev/null; echo "Traceback: boom" >&2; exit 3`)
	_, err := p.Run(context.Background(), &Job{Task: TaskONNX})
	require.ErrorContains(t, err, "Traceback: boom")
}

func TestRunMissingBinary(t *testing.T) {
	p := &Python{Bin: filepath.Join(t.TempDir(), "no-python"), Module: "x"}
	_, err := p.Run(context.Background(), &Job{Task: TaskONNX})
	require.ErrorIs(t, err, errors.ErrBackendUnavailable)
}

func TestDecodeReply(t *testing.T) {
	_, err := decodeReply([]byte("  \n"))
	require.Error(t, err)
	r, err := decodeReply([]byte("noise\n{\"ok\":true,\"output\":\"x\"}\n"))
	require.NoError(t, err)
	require.True(t, r.OK)
	require.Equal(t, "x", r.Output)
}
