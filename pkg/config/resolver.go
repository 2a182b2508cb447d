package config

import (
	"fmt"
	"os"

	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/util/console"
	"github.com/trolo/export/pkg/util/files"
)

// Resolve produces the config for a model. An explicit config (a file path
// or a built-in name) wins over one embedded in the checkpoint, which wins
// over a config inferred from the model identifier.
func Resolve(explicit string, record *checkpoint.Record, modelIdentifier string) (*Config, error) {
	cfg, err := resolve(explicit, record, modelIdentifier)
	if err != nil {
		return nil, err
	}
	console.Debugf("Using %s config from %s", cfg.Source, cfg.Origin)
	return cfg, nil
}

func resolve(explicit string, record *checkpoint.Record, modelIdentifier string) (*Config, error) {
	if explicit != "" {
		cfg, err := loadExplicit(explicit)
		if err != nil {
			return nil, err
		}
		cfg.Source = SourceExplicit
		return cfg, nil
	}

	if record != nil {
		if blob, ok := record.EmbeddedConfig(); ok {
			cfg, err := Parse(blob, record.Path)
			if err != nil {
				return nil, fmt.Errorf("invalid config embedded in %s: %w", record.Path, err)
			}
			cfg.Source = SourceEmbedded
			return cfg, nil
		}
	}

	if name, ok := Infer(modelIdentifier); ok {
		blob, _ := Lookup(name)
		cfg, err := Parse(blob, name)
		if err != nil {
			return nil, err
		}
		cfg.Source = SourceInferred
		return cfg, nil
	}

	return nil, errors.ConfigNotFound("no config given, none embedded in the checkpoint and none matches %q", modelIdentifier)
}

func loadExplicit(explicit string) (*Config, error) {
	exists, err := files.Exists(explicit)
	if err != nil {
		return nil, err
	}
	if exists {
		blob, err := os.ReadFile(explicit)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", explicit, err)
		}
		return Parse(blob, explicit)
	}
	blob, ok := Lookup(explicit)
	if !ok {
		return nil, errors.ConfigNotFound("config %q is neither a file nor a known config name", explicit)
	}
	return Parse(blob, explicit)
}
