// Package onnxtest builds small detector graphs for tests.
package onnxtest

import "github.com/trolo/export/pkg/onnx"

// Detector returns a graph with the inputs and outputs of an exported
// detector. A batch of 0 makes the batch axes symbolic.
func Detector(batch int64, height int64, width int64, opset int64) *onnx.Model {
	batchDim := onnx.Dim{Value: batch}
	if batch == 0 {
		batchDim = onnx.Dim{Param: "N"}
	}
	return &onnx.Model{
		IRVersion:    8,
		ProducerName: "pytorch",
		Opsets:       []onnx.Opset{{Version: opset}},
		Graph: &onnx.Graph{
			Name:         "main_graph",
			Initializers: []string{"backbone.stem.weight", "decoder.dec_score_head.1.weight"},
			Inputs: []onnx.ValueInfo{
				{Name: "images", ElemType: 1, Dims: []onnx.Dim{batchDim, {Value: 3}, {Value: height}, {Value: width}}},
				{Name: "orig_target_sizes", ElemType: 7, Dims: []onnx.Dim{batchDim, {Value: 2}}},
			},
			Nodes: []onnx.Node{
				{Name: "stem", OpType: "Conv", Inputs: []string{"images", "backbone.stem.weight"}, Outputs: []string{"features"}},
				{Name: "head", OpType: "MatMul", Inputs: []string{"features", "decoder.dec_score_head.1.weight"}, Outputs: []string{"logits", "boxes_raw"}},
				{Name: "post", OpType: "TopK", Inputs: []string{"logits", "boxes_raw", "orig_target_sizes"}, Outputs: []string{"labels", "boxes", "scores"}},
			},
			Outputs: []onnx.ValueInfo{
				{Name: "labels", ElemType: 7, Dims: []onnx.Dim{batchDim, {Value: 300}}},
				{Name: "boxes", ElemType: 1, Dims: []onnx.Dim{batchDim, {Value: 300}, {Value: 4}}},
				{Name: "scores", ElemType: 1, Dims: []onnx.Dim{batchDim, {Value: 300}}},
			},
		},
	}
}
