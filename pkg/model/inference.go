package model

import (
	"fmt"

	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/tensor"
)

// RawOutputs is what the detector network emits for a batch. Decoding
// networks fill Logits and Boxes; networks with a fused post-processor fill
// Labels, Boxes and Scores.
type RawOutputs struct {
	Batch   int
	Queries int
	Classes int

	// Logits is [Batch, Queries, Classes].
	Logits []float32
	// Boxes is [Batch, Queries, 4].
	Boxes  []float32
	Labels []int64
	Scores []float32
}

// Detections holds one label, box and score per query.
type Detections struct {
	Batch   int
	Queries int
	Labels  []int64
	Boxes   []float32
	Scores  []float32
}

// Validate checks that labels, boxes and scores line up.
func (d *Detections) Validate() error {
	n := d.Batch * d.Queries
	if len(d.Labels) != n || len(d.Scores) != n || len(d.Boxes) != n*4 {
		return fmt.Errorf("misaligned detections: %d labels, %d scores and %d box coordinates for %d queries",
			len(d.Labels), len(d.Scores), len(d.Boxes), n)
	}
	return nil
}

// InferenceModule is the post-processing stage wrapped around the network.
type InferenceModule interface {
	Name() string
	Forward(out *RawOutputs) (*Detections, error)
}

// NewInferenceModule picks the post-processing stage named in a config.
func NewInferenceModule(postprocess string) (InferenceModule, error) {
	switch postprocess {
	case config.PostprocessDecode, "":
		return Decode{}, nil
	case config.PostprocessPassthrough:
		return Passthrough{}, nil
	default:
		return nil, &config.ValidationError{Field: "postprocess", Value: postprocess, Message: "must be decode or passthrough"}
	}
}

// Decode turns class logits into a label and a score per query: the score
// is the largest softmax probability and the label its class index.
//
// The export bridge fuses this stage into the graph, so exported graphs
// emit its output directly. Forward is the reference that fused stage must
// match, and Check validates graph outputs against it.
type Decode struct{}

func (Decode) Name() string {
	return config.PostprocessDecode
}

func (Decode) Forward(out *RawOutputs) (*Detections, error) {
	n := out.Batch * out.Queries
	if out.Classes <= 0 || len(out.Logits) != n*out.Classes {
		return nil, fmt.Errorf("expected %d logits, got %d", n*out.Classes, len(out.Logits))
	}
	probs, err := tensor.SoftmaxLastDim(out.Logits, out.Classes)
	if err != nil {
		return nil, err
	}
	scores, labels, err := tensor.MaxLastDim(probs, out.Classes)
	if err != nil {
		return nil, err
	}
	det := &Detections{Batch: out.Batch, Queries: out.Queries, Labels: labels, Boxes: out.Boxes, Scores: scores}
	if err := det.Validate(); err != nil {
		return nil, err
	}
	return det, nil
}

// Check reports detections the decode stage could not have produced. A
// score is the largest of classes softmax probabilities, so it lies in
// [1/classes, 1], and a label is a class index.
func (Decode) Check(det *Detections, classes int) error {
	if err := det.Validate(); err != nil {
		return err
	}
	if classes <= 0 {
		return fmt.Errorf("invalid class count %d", classes)
	}
	const eps = 1e-4
	low := 1/float32(classes) - eps
	for i, score := range det.Scores {
		if score < low || score > 1+eps {
			return fmt.Errorf("score %g of query %d is outside [%g, 1]", score, i, 1/float32(classes))
		}
		if label := det.Labels[i]; label < 0 || label >= int64(classes) {
			return fmt.Errorf("label %d of query %d is not one of %d classes", label, i, classes)
		}
	}
	return nil
}

// Passthrough is used when the network already emits labels, boxes and
// scores.
type Passthrough struct{}

func (Passthrough) Name() string {
	return config.PostprocessPassthrough
}

func (Passthrough) Forward(out *RawOutputs) (*Detections, error) {
	det := &Detections{Batch: out.Batch, Queries: out.Queries, Labels: out.Labels, Boxes: out.Boxes, Scores: out.Scores}
	if err := det.Validate(); err != nil {
		return nil, err
	}
	return det, nil
}
