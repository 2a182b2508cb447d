package checkpoint

import (
	"bufio"
	"fmt"
	"os"

	"github.com/trolo/export/pkg/errors"
	tpath "github.com/trolo/export/pkg/path"
	"github.com/trolo/export/pkg/tensor"
	"github.com/trolo/export/pkg/util/console"
)

const (
	// EMAPrefix keys the exponential-moving-average weights.
	EMAPrefix = "ema.module."
	// ModelPrefix keys the plain training weights.
	ModelPrefix = "model."
	// ConfigKey is the metadata entry holding an embedded config blob.
	ConfigKey = "cfg"
)

// Kind distinguishes weight checkpoints from already exported graphs.
type Kind int

const (
	KindWeights Kind = iota
	KindGraph
)

// WeightSource names the checkpoint entry the weights were taken from.
type WeightSource string

const (
	SourceEMA   WeightSource = "ema"
	SourceModel WeightSource = "model"
)

// Record is the raw content of a checkpoint file.
type Record struct {
	Path     string
	Kind     Kind
	Tensors  tensor.StateDict
	Metadata map[string]string
}

// Load deserialises the checkpoint at path. A .onnx path yields a graph
// record without tensors. Zip archives written by torch.save are read as
// pickled checkpoints, anything else as safetensors.
func Load(path string) (*Record, error) {
	if tpath.HasExt(path, ".onnx") {
		return &Record{Path: path, Kind: KindGraph, Tensors: tensor.StateDict{}, Metadata: map[string]string{}}, nil
	}
	archive, err := isTorchArchive(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", path, err)
	}
	var state tensor.StateDict
	var metadata map[string]string
	if archive {
		state, metadata, err = readTorch(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load torch checkpoint %s: %w", path, err)
		}
	} else {
		state, metadata, err = readSafetensors(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint %s: %w", path, err)
		}
	}
	console.Debugf("Loaded %d tensors from %s", len(state), path)
	return &Record{Path: path, Kind: KindWeights, Tensors: state, Metadata: metadata}, nil
}

// Save writes state and metadata to path in the checkpoint layout.
func Save(path string, state tensor.StateDict, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := writeSafetensors(w, state, metadata); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Weights selects the weight state: EMA weights when present, else the
// plain model weights. Prefixes are stripped from the returned names.
func (r *Record) Weights() (tensor.StateDict, WeightSource, error) {
	if r.Tensors.HasPrefix(EMAPrefix) {
		return r.Tensors.Sub(EMAPrefix), SourceEMA, nil
	}
	if r.Tensors.HasPrefix(ModelPrefix) {
		return r.Tensors.Sub(ModelPrefix), SourceModel, nil
	}
	return nil, "", errors.MissingWeights("checkpoint %s has neither %q nor %q weights", r.Path, "ema.module", "model")
}

// EmbeddedConfig returns the config blob stored in the checkpoint, if any.
func (r *Record) EmbeddedConfig() ([]byte, bool) {
	cfg, ok := r.Metadata[ConfigKey]
	if !ok || cfg == "" {
		return nil, false
	}
	return []byte(cfg), true
}
