// Package bridge runs graph export jobs in the Python toolchain that owns
// the detector modules. A job is sent as JSON on stdin and the reply read as
// JSON from stdout; stderr is streamed to the debug log.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/trolo/export/pkg/backend"
	trerrors "github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/util"
	"github.com/trolo/export/pkg/util/console"
)

const (
	TaskONNX     = "onnx"
	TaskOpenVINO = "openvino"
)

// Job describes one conversion. Checkpoint is a staged deploy checkpoint;
// Input is a raw little-endian float32 file of InputShape.
type Job struct {
	Task       string `json:"task"`
	Checkpoint string `json:"checkpoint"`
	Input      string `json:"input"`
	InputShape []int  `json:"input_shape"`
	Output     string `json:"output"`
	Device     string `json:"device"`

	Opset             int                       `json:"opset,omitempty"`
	InputNames        []string                  `json:"input_names,omitempty"`
	OutputNames       []string                  `json:"output_names,omitempty"`
	DynamicAxes       map[string]map[int]string `json:"dynamic_axes,omitempty"`
	DoConstantFolding bool                      `json:"do_constant_folding,omitempty"`
	CompressToFP16    bool                      `json:"compress_to_fp16,omitempty"`
}

// Reply is what the bridge writes to stdout.
type Reply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Output string `json:"output,omitempty"`
}

// Runner executes export jobs.
type Runner interface {
	Run(ctx context.Context, job *Job) (string, error)
}

// Python runs jobs as `python -m module`.
type Python struct {
	Bin    string
	Module string
}

// Run executes job and returns the path the bridge reports having written.
func (p *Python) Run(ctx context.Context, job *Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, p.Bin, "-m", p.Module)
	var stdout bytes.Buffer
	logs := console.Writer(console.DebugLevel)
	defer logs.Close()
	tail := util.NewRingBufferWriter(logs, backend.TailSize)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = tail

	console.Debug("$ " + strings.Join(cmd.Args, " "))
	console.Debugf("bridge job: %s", payload)
	runErr := cmd.Run()

	if backend.NotStarted(runErr) {
		return "", fmt.Errorf("%w: %s: %v", trerrors.ErrBackendUnavailable, p.Bin, runErr)
	}

	reply, err := decodeReply(stdout.Bytes())
	if err != nil {
		if runErr != nil {
			return "", fmt.Errorf("%s task failed: %w\n\nstderr:\n%s", job.Task, runErr, tail.String())
		}
		return "", fmt.Errorf("failed to read bridge reply: %w\n\nstdout:\n%s", err, stdout.String())
	}
	if !reply.OK {
		return "", fmt.Errorf("%s task failed: %s", job.Task, reply.Error)
	}
	if runErr != nil {
		return "", fmt.Errorf("%s task failed: %w\n\nstderr:\n%s", job.Task, runErr, tail.String())
	}
	if reply.Output == "" {
		reply.Output = job.Output
	}
	return reply.Output, nil
}

// decodeReply reads the last JSON object on stdout; libraries in the bridge
// may print before it.
func decodeReply(out []byte) (*Reply, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	var reply Reply
	if err := json.Unmarshal(out, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
