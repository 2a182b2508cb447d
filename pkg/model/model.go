package model

import (
	"fmt"
	"path/filepath"

	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/errors"
	tpath "github.com/trolo/export/pkg/path"
	"github.com/trolo/export/pkg/tensor"
)

// Metadata keys written into a staged checkpoint next to the config.
const (
	MetaArch        = "arch"
	MetaPostprocess = "postprocess"
	MetaWeights     = "weights"
	MetaNumQueries  = "num_queries"
)

// DeployableModel is a checkpoint loaded into its architecture and switched
// to deploy mode, or an already exported ONNX graph.
type DeployableModel struct {
	// CheckpointPath is the resolved checkpoint file. Exported artifacts
	// are written beside it.
	CheckpointPath string
	Config         *config.Config
	Arch           string
	State          tensor.StateDict
	WeightSource   checkpoint.WeightSource
	NumQueries     int
	Postprocess    InferenceModule
	// Device is fixed when the model is built. Exporters read it but never
	// change it.
	Device Device

	// GraphPath is set when the checkpoint is an ONNX graph. Such models
	// have no state and can only be compiled into an engine.
	GraphPath string
}

// IsGraph reports whether the model is an ONNX graph rather than weights.
func (m *DeployableModel) IsGraph() bool {
	return m.GraphPath != ""
}

// Stage writes the deploy-mode state and its config into dir, in the
// layout the export bridge loads. It returns the staged file path.
func (m *DeployableModel) Stage(dir string) (string, error) {
	if m.IsGraph() {
		return "", errors.ErrGraphSource
	}
	cfg, err := m.Config.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to serialise config: %w", err)
	}
	metadata := map[string]string{
		checkpoint.ConfigKey: string(cfg),
		MetaArch:             m.Arch,
		MetaPostprocess:      m.Postprocess.Name(),
		MetaWeights:          string(m.WeightSource),
		MetaNumQueries:       fmt.Sprint(m.NumQueries),
	}
	staged := filepath.Join(dir, tpath.Stem(m.CheckpointPath)+"_deploy.safetensors")
	if err := checkpoint.Save(staged, m.State, metadata); err != nil {
		return "", err
	}
	return staged, nil
}
