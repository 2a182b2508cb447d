package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/errors"
)

const customYAML = `model: rtdetr
num_classes: 3
eval_spatial_size: [480, 640]
backbone:
  name: r18vd
  pretrained: true
decoder:
  num_queries: 100
  hidden_dim: 64
  num_layers: 2
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(customYAML), "custom.yml")
	require.NoError(t, err)
	require.Equal(t, ModelRTDETR, cfg.Model)
	require.Equal(t, 3, cfg.NumClasses)
	require.Equal(t, PostprocessDecode, cfg.Postprocess)
	require.Equal(t, -1, cfg.Decoder.EvalIdx)
	require.Equal(t, 1, cfg.EvalLayer())
	h, w := cfg.InputSize()
	require.Equal(t, 480, h)
	require.Equal(t, 640, w)
}

func TestParseAcceptsJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"model":"rtdetr","num_classes":2,"decoder":{"num_queries":10,"hidden_dim":8,"num_layers":1}}`), "ckpt")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.NumClasses)
}

func TestParseKeepsUnknownKeys(t *testing.T) {
	cfg, err := Parse([]byte(customYAML+"  activation: relu\n"), "custom.yml")
	require.NoError(t, err)
	require.Equal(t, "relu", cfg.Decoder.Extra["activation"])
}

func TestParseSchemaError(t *testing.T) {
	_, err := Parse([]byte("model: rtdetr\nnum_classes: many\ndecoder: {num_queries: 1, hidden_dim: 1, num_layers: 1}\n"), "bad.yml")
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "num_classes", serr.Field)
	require.Contains(t, serr.Message, "must be a integer")
}

func TestParseUnknownModel(t *testing.T) {
	_, err := Parse([]byte("model: yolo\nnum_classes: 1\ndecoder: {num_queries: 1, hidden_dim: 1, num_layers: 1}\n"), "bad.yml")
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
}

func TestParseError(t *testing.T) {
	_, err := Parse([]byte("model: [unclosed"), "bad.yml")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "bad.yml", perr.Filename)
}

func TestValidateSemantics(t *testing.T) {
	_, err := Parse([]byte(`model: dfine
num_classes: 1
postprocess: decode
encoder:
  hidden_dim: 32
decoder:
  num_queries: 1
  hidden_dim: 16
  num_layers: 2
  eval_idx: 5
`), "bad.yml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "encoder.hidden_dim")
	require.Contains(t, err.Error(), "decoder.eval_idx")
	require.Contains(t, err.Error(), "reg_max")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDisablePretrained(t *testing.T) {
	cfg, err := Parse([]byte(customYAML), "custom.yml")
	require.NoError(t, err)
	require.True(t, cfg.Backbone.Pretrained)
	cfg.DisablePretrained()
	require.False(t, cfg.Backbone.Pretrained)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(customYAML), "custom.yml")
	require.NoError(t, err)
	blob, err := cfg.Marshal()
	require.NoError(t, err)
	again, err := Parse(blob, "marshalled")
	require.NoError(t, err)
	require.Equal(t, cfg.Decoder, again.Decoder)
	require.Equal(t, cfg.EvalSpatialSize, again.EvalSpatialSize)
}

func TestBuiltinConfigsAreValid(t *testing.T) {
	names := Names()
	require.Contains(t, names, "dfine-n")
	require.Contains(t, names, "rtdetr-r101")
	for _, name := range names {
		blob, ok := Lookup(name)
		require.True(t, ok, name)
		_, err := Parse(blob, name)
		require.NoError(t, err, name)
	}
}

func TestInfer(t *testing.T) {
	for identifier, expected := range map[string]string{
		"dfine_n.pth":                 "dfine-n",
		"/ckpts/DFINE-X_coco_ft.pth":  "dfine-x",
		"rtdetr_r101.pth":             "rtdetr-r101",
		"rtdetr-r10.pth":              "",
		"rtdetr_r18vd_finetuned.ckpt": "",
		"yolo.pth":                    "",
	} {
		name, ok := Infer(identifier)
		require.Equal(t, expected != "", ok, identifier)
		require.Equal(t, expected, name, identifier)
	}
}

func recordWithConfig(t *testing.T, blob string) *checkpoint.Record {
	t.Helper()
	rec := &checkpoint.Record{Path: "/ckpts/dfine_n.pth", Kind: checkpoint.KindWeights, Metadata: map[string]string{}}
	if blob != "" {
		rec.Metadata[checkpoint.ConfigKey] = blob
	}
	return rec
}

func TestResolveExplicitOverEmbedded(t *testing.T) {
	p := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(p, []byte(customYAML), 0o644))

	embedded, _ := Lookup("dfine-n")
	cfg, err := Resolve(p, recordWithConfig(t, string(embedded)), "dfine_n.pth")
	require.NoError(t, err)
	require.Equal(t, SourceExplicit, cfg.Source)
	require.Equal(t, 3, cfg.NumClasses)
	require.Equal(t, p, cfg.Origin)
}

func TestResolveExplicitName(t *testing.T) {
	cfg, err := Resolve("rtdetr-r50", recordWithConfig(t, customYAML), "dfine_n.pth")
	require.NoError(t, err)
	require.Equal(t, SourceExplicit, cfg.Source)
	require.Equal(t, ModelRTDETR, cfg.Model)
	require.Equal(t, 6, cfg.Decoder.NumLayers)
}

func TestResolveExplicitUnknown(t *testing.T) {
	_, err := Resolve("nope.yml", recordWithConfig(t, customYAML), "dfine_n.pth")
	require.True(t, errors.IsConfigNotFound(err))
}

func TestResolveEmbeddedOverInferred(t *testing.T) {
	cfg, err := Resolve("", recordWithConfig(t, customYAML), "dfine_n.pth")
	require.NoError(t, err)
	require.Equal(t, SourceEmbedded, cfg.Source)
	require.Equal(t, ModelRTDETR, cfg.Model)
}

func TestResolveInvalidEmbedded(t *testing.T) {
	_, err := Resolve("", recordWithConfig(t, "model: [oops"), "dfine_n.pth")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestResolveInferred(t *testing.T) {
	cfg, err := Resolve("", recordWithConfig(t, ""), "/ckpts/dfine_m_obj365.pth")
	require.NoError(t, err)
	require.Equal(t, SourceInferred, cfg.Source)
	require.Equal(t, "dfine-m", cfg.Origin)
	require.Equal(t, 4, cfg.Decoder.NumLayers)
}

func TestResolveNothing(t *testing.T) {
	_, err := Resolve("", nil, "mystery.pth")
	require.True(t, errors.IsConfigNotFound(err))
	require.Equal(t, errors.CodeConfigNotFound, errors.Code(err))
}
