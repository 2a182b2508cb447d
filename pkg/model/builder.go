package model

import (
	"context"

	"github.com/trolo/export/pkg/arch"
	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/util/console"
)

// Build loads the weights of record into the architecture named by cfg and
// switches it to deploy mode. Graph records skip the architecture and cfg
// may be nil for them.
func Build(record *checkpoint.Record, cfg *config.Config, device string) (*DeployableModel, error) {
	dev, err := ParseDevice(device)
	if err != nil {
		return nil, err
	}
	if record.Kind == checkpoint.KindGraph {
		console.Debugf("%s is an ONNX graph, skipping weight loading", record.Path)
		return &DeployableModel{CheckpointPath: record.Path, GraphPath: record.Path, Config: cfg, Device: dev}, nil
	}

	if cfg == nil {
		return nil, errors.ConfigNotFound("no config for %s", record.Path)
	}

	// the backbone must not fetch its own weights over the checkpoint's
	cfg.DisablePretrained()

	state, source, err := record.Weights()
	if err != nil {
		return nil, err
	}
	console.Debugf("Using %s weights from %s (%d tensors)", source, record.Path, len(state))

	a, err := arch.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.LoadStateDict(state); err != nil {
		return nil, err
	}
	deployed, err := a.Deploy()
	if err != nil {
		return nil, err
	}
	if len(deployed.Dropped) > 0 {
		console.Debugf("Dropped %d training-only parameters", len(deployed.Dropped))
	}

	post, err := NewInferenceModule(cfg.Postprocess)
	if err != nil {
		return nil, err
	}

	return &DeployableModel{
		CheckpointPath: record.Path,
		Config:         cfg,
		Arch:           deployed.Name,
		State:          deployed.State,
		WeightSource:   source,
		NumQueries:     deployed.NumQueries,
		Postprocess:    post,
		Device:         dev,
	}, nil
}

// Open resolves a model identifier to a checkpoint, resolves its config and
// builds the deployable model.
func Open(ctx context.Context, resolver *checkpoint.Resolver, identifier string, explicitConfig string, device string) (*DeployableModel, error) {
	path, err := resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	record, err := checkpoint.Load(path)
	if err != nil {
		return nil, err
	}
	if record.Kind == checkpoint.KindGraph {
		return Build(record, nil, device)
	}
	cfg, err := config.Resolve(explicitConfig, record, identifier)
	if err != nil {
		return nil, err
	}
	return Build(record, cfg, device)
}
