package export

import (
	"context"
	"fmt"
	"time"

	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/model"
	"github.com/trolo/export/pkg/util/console"
	"github.com/trolo/export/pkg/util/files"
)

const (
	outcomeOK      = "ok"
	outcomeMissing = "missing"
	outcomeFailed  = "failed"
)

// Dispatcher routes a request to the exporter for its format.
type Dispatcher struct {
	ONNX     Exporter
	OpenVINO Exporter
	TensorRT Exporter
	// Metrics is optional.
	Metrics *Metrics
}

func (d *Dispatcher) exporter(f Format) (Exporter, error) {
	switch f {
	case FormatONNX:
		return d.ONNX, nil
	case FormatOpenVINO:
		return d.OpenVINO, nil
	case FormatTensorRT:
		return d.TensorRT, nil
	case FormatUnknown:
		return nil, errors.UnsupportedFormat("export format is missing, expected one of onnx, openvino, engine")
	}
	return nil, errors.UnsupportedFormat("unsupported export format %d", int(f))
}

// Export runs one export. An invalid format fails before any backend runs.
// When the exporter returns but its artifact is absent, the result carries
// SeverityError and the error is nil.
func (d *Dispatcher) Export(ctx context.Context, m *model.DeployableModel, req Request) (*Result, error) {
	exporter, err := d.exporter(req.Format)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return nil, errors.UnsupportedFormat("no exporter configured for %s", req.Format)
	}
	req = req.withDefaults()

	console.Infof("Exporting %s to %s (%s, batch %d, %s)", m.CheckpointPath, req.Format, req.InputSize, req.BatchSize, req.Precision)
	start := time.Now()
	artifact, err := exporter.Export(ctx, m, req)
	if err != nil {
		d.Metrics.observe(req.Format, outcomeFailed, time.Since(start), -1)
		return nil, err
	}

	size := files.Size(artifact.Path)
	if size < 0 {
		d.Metrics.observe(req.Format, outcomeMissing, time.Since(start), -1)
		msg := fmt.Sprintf("Failed to export model: %s", artifact.Path)
		console.Error(msg)
		return &Result{Artifact: artifact, Severity: SeverityError, Message: msg}, nil
	}

	d.Metrics.observe(req.Format, outcomeOK, time.Since(start), size)
	msg := fmt.Sprintf("Model exported to %s", artifact.Path)
	console.Success(msg)
	return &Result{Artifact: artifact, Severity: SeverityOK, Message: msg}, nil
}
