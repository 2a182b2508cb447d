package export

import (
	"context"
	"fmt"

	"github.com/trolo/export/pkg/backend/bridge"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/model"
	tpath "github.com/trolo/export/pkg/path"
	"github.com/trolo/export/pkg/tensor"
	"github.com/trolo/export/pkg/util"
)

// OpenVINOExporter writes <stem>.xml (and its .bin weights) beside the
// checkpoint. The IR is not validated after conversion.
type OpenVINOExporter struct {
	Bridge bridge.Runner
}

func (e *OpenVINOExporter) Export(ctx context.Context, m *model.DeployableModel, req Request) (*Artifact, error) {
	if m.IsGraph() {
		return nil, fmt.Errorf("cannot convert %s to openvino: %w", m.GraphPath, errors.ErrGraphSource)
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
	input, err := st.writeTensor("example.bin", tensor.RandN(newRand(req.Seed), shape, 1.0/255))
	if err != nil {
		return nil, err
	}

	precision := FP32
	if req.Precision == FP16 {
		precision = FP16
	}
	written, err := e.Bridge.Run(ctx, &bridge.Job{
		Task:           bridge.TaskOpenVINO,
		Checkpoint:     checkpoint,
		Input:          input,
		InputShape:     shape,
		Output:         tpath.Sibling(m.CheckpointPath, ".xml"),
		Device:         model.DeviceCPU,
		CompressToFP16: precision == FP16,
	})
	if err != nil {
		return nil, util.WrapError(err, "openvino conversion failed")
	}

	return &Artifact{
		Path:   written,
		Format: FormatOpenVINO,
		Metadata: Metadata{
			Precision:  precision,
			InputShape: shape,
		},
	}, nil
}
