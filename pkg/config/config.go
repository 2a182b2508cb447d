package config

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"github.com/trolo/export/pkg/util/console"
)

const (
	ModelDFINE  = "dfine"
	ModelRTDETR = "rtdetr"

	PostprocessDecode      = "decode"
	PostprocessPassthrough = "passthrough"
)

// Source records which resolution branch produced a config.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceEmbedded Source = "embedded"
	SourceInferred Source = "inferred"
)

type Backbone struct {
	Type       string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Name       string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Pretrained bool                   `json:"pretrained" yaml:"pretrained"`
	Extra      map[string]interface{} `json:"-" yaml:",inline"`
}

type Encoder struct {
	Type      string                 `json:"type,omitempty" yaml:"type,omitempty"`
	HiddenDim int                    `json:"hidden_dim,omitempty" yaml:"hidden_dim,omitempty"`
	Extra     map[string]interface{} `json:"-" yaml:",inline"`
}

type Decoder struct {
	Type         string                 `json:"type,omitempty" yaml:"type,omitempty"`
	NumQueries   int                    `json:"num_queries" yaml:"num_queries"`
	HiddenDim    int                    `json:"hidden_dim" yaml:"hidden_dim"`
	NumLayers    int                    `json:"num_layers" yaml:"num_layers"`
	EvalIdx      int                    `json:"eval_idx" yaml:"eval_idx"`
	NumDenoising int                    `json:"num_denoising,omitempty" yaml:"num_denoising,omitempty"`
	RegMax       int                    `json:"reg_max,omitempty" yaml:"reg_max,omitempty"`
	Extra        map[string]interface{} `json:"-" yaml:",inline"`
}

// Config describes a detector architecture and its hyperparameters.
type Config struct {
	Model           string   `json:"model" yaml:"model"`
	NumClasses      int      `json:"num_classes" yaml:"num_classes"`
	EvalSpatialSize []int    `json:"eval_spatial_size,omitempty" yaml:"eval_spatial_size,omitempty"`
	Postprocess     string   `json:"postprocess,omitempty" yaml:"postprocess,omitempty"`
	Backbone        Backbone `json:"backbone" yaml:"backbone"`
	Encoder         Encoder  `json:"encoder" yaml:"encoder"`
	Decoder         Decoder  `json:"decoder" yaml:"decoder"`

	Source Source `json:"-" yaml:"-"`
	// Origin is the file, registry name or checkpoint the config came from.
	Origin string `json:"-" yaml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		Postprocess: PostprocessDecode,
		Decoder:     Decoder{EvalIdx: -1},
	}
}

// Parse reads a YAML or JSON config blob, checks it against the schema and
// validates its values. origin is used in error messages only.
func Parse(blob []byte, origin string) (*Config, error) {
	if err := ValidateYAML(blob); err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Filename = origin
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(blob, cfg); err != nil {
		return nil, &ParseError{Filename: origin, Err: err}
	}
	cfg.Origin = origin
	if err := cfg.Validate().Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the schema cannot express.
func (c *Config) Validate() *ValidationResult {
	result := NewValidationResult()
	if c.Postprocess != PostprocessDecode && c.Postprocess != PostprocessPassthrough {
		result.AddError(&ValidationError{Field: "postprocess", Value: c.Postprocess, Message: "must be decode or passthrough"})
	}
	if len(c.EvalSpatialSize) != 0 && len(c.EvalSpatialSize) != 2 {
		result.AddError(&ValidationError{Field: "eval_spatial_size", Value: fmt.Sprint(c.EvalSpatialSize), Message: "must be [height, width]"})
	}
	if c.Encoder.HiddenDim != 0 && c.Encoder.HiddenDim != c.Decoder.HiddenDim {
		result.AddError(&ValidationError{
			Field:   "encoder.hidden_dim",
			Value:   fmt.Sprint(c.Encoder.HiddenDim),
			Message: fmt.Sprintf("must match decoder.hidden_dim (%d)", c.Decoder.HiddenDim),
		})
	}
	if n := c.Decoder.NumLayers; c.Decoder.EvalIdx >= n || c.Decoder.EvalIdx < -n {
		result.AddError(&ValidationError{
			Field:   "decoder.eval_idx",
			Value:   fmt.Sprint(c.Decoder.EvalIdx),
			Message: fmt.Sprintf("out of range for %d decoder layers", n),
		})
	}
	if c.Model == ModelDFINE && c.Decoder.RegMax <= 0 {
		result.AddError(&ValidationError{Field: "decoder.reg_max", Message: "dfine requires a positive reg_max"})
	}
	return result
}

// EvalLayer is the decoder layer used at inference, with negative indices
// counted from the end.
func (c *Config) EvalLayer() int {
	if c.Decoder.EvalIdx < 0 {
		return c.Decoder.NumLayers + c.Decoder.EvalIdx
	}
	return c.Decoder.EvalIdx
}

// InputSize is the evaluation size, or (0, 0) when the config has none.
func (c *Config) InputSize() (height int, width int) {
	if len(c.EvalSpatialSize) != 2 {
		return 0, 0
	}
	return c.EvalSpatialSize[0], c.EvalSpatialSize[1]
}

// DisablePretrained stops the backbone from fetching its own pretrained
// weights; the checkpoint provides them.
func (c *Config) DisablePretrained() {
	if c.Backbone.Pretrained {
		console.Debugf("Disabling pretrained backbone weights for %s", c.Origin)
	}
	c.Backbone.Pretrained = false
}

// Marshal serialises the config to YAML, the form embedded in checkpoints.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
