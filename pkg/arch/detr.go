package arch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/trolo/export/pkg/config"
	trerrors "github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/tensor"
)

var topLevelModules = []string{"backbone", "encoder", "decoder"}

const (
	scoreHead     = "decoder.dec_score_head."
	bboxHead      = "decoder.dec_bbox_head."
	denoisingStem = "decoder.denoising_class_embed."
	encScoreHead  = "decoder.enc_score_head."
)

// detr covers the DETR-family decoders shared by D-FINE and RT-DETR. They
// differ in the width of the box regression head.
type detr struct {
	name      string
	cfg       *config.Config
	boxOutDim int
	state     tensor.StateDict
}

// NewDFINE builds a D-FINE detector. Its box head predicts a distribution
// of reg_max+1 bins per box edge.
func NewDFINE(cfg *config.Config) Architecture {
	return &detr{name: config.ModelDFINE, cfg: cfg, boxOutDim: 4 * (cfg.Decoder.RegMax + 1)}
}

// NewRTDETR builds an RT-DETR detector.
func NewRTDETR(cfg *config.Config) Architecture {
	return &detr{name: config.ModelRTDETR, cfg: cfg, boxOutDim: 4}
}

func (d *detr) Name() string {
	return d.name
}

// manifest is the set of parameters whose presence and shape are fixed by
// the config.
func (d *detr) manifest() map[string][]int {
	hidden := d.cfg.Decoder.HiddenDim
	classes := d.cfg.NumClasses
	m := map[string][]int{
		encScoreHead + "weight": {classes, hidden},
		encScoreHead + "bias":   {classes},
	}
	for i := 0; i < d.cfg.Decoder.NumLayers; i++ {
		layer := strconv.Itoa(i)
		m[scoreHead+layer+".weight"] = []int{classes, hidden}
		m[scoreHead+layer+".bias"] = []int{classes}
		m[bboxHead+layer+".layers.2.weight"] = []int{d.boxOutDim, hidden}
		m[bboxHead+layer+".layers.2.bias"] = []int{d.boxOutDim}
	}
	return m
}

func (d *detr) LoadStateDict(state tensor.StateDict) error {
	var problems []error
	manifest := d.manifest()
	for _, name := range state.Keys() {
		module, _, _ := strings.Cut(name, ".")
		if !slices.Contains(topLevelModules, module) {
			problems = append(problems, fmt.Errorf("unexpected parameter %s", name))
			continue
		}
		if shape, ok := manifest[name]; ok && !state[name].SameShape(shape) {
			problems = append(problems, fmt.Errorf("%s has shape %v, expected %v", name, state[name].Shape, shape))
		}
		if strings.HasPrefix(name, scoreHead) || strings.HasPrefix(name, bboxHead) {
			if layer, ok := headLayer(name); ok && layer >= d.cfg.Decoder.NumLayers {
				problems = append(problems, fmt.Errorf("%s belongs to decoder layer %d, config has %d", name, layer, d.cfg.Decoder.NumLayers))
			}
		}
	}
	for _, name := range sortedKeys(manifest) {
		if _, ok := state[name]; !ok {
			problems = append(problems, fmt.Errorf("missing parameter %s", name))
		}
	}
	if len(problems) > 0 {
		return trerrors.StateMismatch(errors.Join(problems...), "checkpoint weights do not fit %s with %d classes", d.name, d.cfg.NumClasses)
	}
	d.state = state
	return nil
}

func (d *detr) Deploy() (*Deployed, error) {
	if d.state == nil {
		return nil, fmt.Errorf("%s has no weights loaded", d.name)
	}
	evalLayer := d.cfg.EvalLayer()
	var dropped []string
	state := d.state.Without(func(name string) bool {
		drop := strings.HasPrefix(name, denoisingStem)
		if layer, ok := headLayer(name); ok && layer != evalLayer {
			drop = true
		}
		if drop {
			dropped = append(dropped, name)
		}
		return drop
	})
	slices.Sort(dropped)
	return &Deployed{
		Name:       d.name,
		State:      state,
		NumClasses: d.cfg.NumClasses,
		NumQueries: d.cfg.Decoder.NumQueries,
		Dropped:    dropped,
	}, nil
}

// headLayer returns the decoder layer index of a per-layer head parameter.
func headLayer(name string) (int, bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, scoreHead):
		rest = strings.TrimPrefix(name, scoreHead)
	case strings.HasPrefix(name, bboxHead):
		rest = strings.TrimPrefix(name, bboxHead)
	default:
		return 0, false
	}
	idx, _, _ := strings.Cut(rest, ".")
	layer, err := strconv.Atoi(idx)
	if err != nil {
		return 0, false
	}
	return layer, true
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
