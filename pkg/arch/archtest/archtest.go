// Package archtest builds small configs and matching state dicts for tests.
package archtest

import (
	"fmt"
	"math/rand"

	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/tensor"
)

// Config returns a tiny valid config for model ("dfine" or "rtdetr").
func Config(model string) *config.Config {
	cfg := &config.Config{
		Model:           model,
		NumClasses:      3,
		EvalSpatialSize: []int{32, 32},
		Postprocess:     config.PostprocessDecode,
		Backbone:        config.Backbone{Name: "tiny", Pretrained: true},
		Encoder:         config.Encoder{HiddenDim: 8},
		Decoder:         config.Decoder{NumQueries: 5, HiddenDim: 8, NumLayers: 2, EvalIdx: -1, NumDenoising: 4},
		Source:          config.SourceExplicit,
		Origin:          "archtest",
	}
	if model == config.ModelDFINE {
		cfg.Decoder.RegMax = 2
	}
	return cfg
}

// State returns a state dict that loads cleanly into the architecture
// built from cfg, including training-only parameters.
func State(cfg *config.Config) tensor.StateDict {
	rng := rand.New(rand.NewSource(1))
	hidden := cfg.Decoder.HiddenDim
	classes := cfg.NumClasses
	boxOut := 4
	if cfg.Model == config.ModelDFINE {
		boxOut = 4 * (cfg.Decoder.RegMax + 1)
	}
	state := tensor.StateDict{
		"backbone.stem.weight":                   tensor.RandN(rng, []int{hidden, 3, 3, 3}, 0.1),
		"encoder.input_proj.0.weight":            tensor.RandN(rng, []int{hidden, hidden}, 0.1),
		"decoder.enc_score_head.weight":          tensor.RandN(rng, []int{classes, hidden}, 0.1),
		"decoder.enc_score_head.bias":            tensor.RandN(rng, []int{classes}, 0.1),
		"decoder.denoising_class_embed.weight":   tensor.RandN(rng, []int{classes + 1, hidden}, 0.1),
		"decoder.query_pos_head.layers.0.weight": tensor.RandN(rng, []int{hidden, 4}, 0.1),
	}
	for i := 0; i < cfg.Decoder.NumLayers; i++ {
		state[fmt.Sprintf("decoder.dec_score_head.%d.weight", i)] = tensor.RandN(rng, []int{classes, hidden}, 0.1)
		state[fmt.Sprintf("decoder.dec_score_head.%d.bias", i)] = tensor.RandN(rng, []int{classes}, 0.1)
		state[fmt.Sprintf("decoder.dec_bbox_head.%d.layers.2.weight", i)] = tensor.RandN(rng, []int{boxOut, hidden}, 0.1)
		state[fmt.Sprintf("decoder.dec_bbox_head.%d.layers.2.bias", i)] = tensor.RandN(rng, []int{boxOut}, 0.1)
	}
	return state
}

// Prefixed returns state with every key under prefix, the way checkpoints
// store it.
func Prefixed(state tensor.StateDict, prefix string) tensor.StateDict {
	out := make(tensor.StateDict, len(state))
	for k, v := range state {
		out[prefix+k] = v
	}
	return out
}
