// Package arch holds the detector architectures a checkpoint can be loaded
// into. Architectures know which parameters they own and which of them are
// needed after deployment; the graph itself is built by the export bridge.
package arch

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/tensor"
)

// Architecture is a detector that can take a state dict and switch to
// deploy mode.
type Architecture interface {
	Name() string
	LoadStateDict(state tensor.StateDict) error
	Deploy() (*Deployed, error)
}

// Deployed is the inference-only state of an architecture.
type Deployed struct {
	Name       string
	State      tensor.StateDict
	NumClasses int
	NumQueries int
	// Dropped lists the training-only parameters removed by Deploy.
	Dropped []string
}

type factory func(cfg *config.Config) Architecture

var registry = map[string]factory{
	config.ModelDFINE:  NewDFINE,
	config.ModelRTDETR: NewRTDETR,
}

// New builds the architecture named by cfg.Model.
func New(cfg *config.Config) (Architecture, error) {
	f, ok := registry[strings.ToLower(cfg.Model)]
	if !ok {
		return nil, &config.ValidationError{
			Field:   "model",
			Value:   cfg.Model,
			Message: fmt.Sprintf("unknown architecture, expected one of %s", strings.Join(Names(), ", ")),
		}
	}
	return f(cfg), nil
}

// Names lists the known architectures.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
