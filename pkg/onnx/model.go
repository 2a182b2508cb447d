// Package onnx reads the parts of an ONNX model needed to check that an
// exported graph is structurally sound. Weights and attributes are skipped.
package onnx

// Model is the subset of ModelProto the checker looks at.
type Model struct {
	IRVersion    int64
	ProducerName string
	Opsets       []Opset
	Graph        *Graph
}

// Opset is one entry of opset_import. The default ONNX domain is "".
type Opset struct {
	Domain  string
	Version int64
}

type Graph struct {
	Name         string
	Nodes        []Node
	Initializers []string
	Inputs       []ValueInfo
	Outputs      []ValueInfo
}

type Node struct {
	Name    string
	OpType  string
	Domain  string
	Inputs  []string
	Outputs []string
}

// ValueInfo is a named graph input or output with its tensor shape.
type ValueInfo struct {
	Name     string
	ElemType int32
	Dims     []Dim
}

// Dim is either a fixed size or a symbolic name.
type Dim struct {
	Value int64
	Param string
}

// IsDynamic reports whether the dimension is symbolic.
func (d Dim) IsDynamic() bool {
	return d.Param != "" || d.Value <= 0
}

// DefaultOpset returns the opset version of the default domain, or 0.
func (m *Model) DefaultOpset() int64 {
	for _, o := range m.Opsets {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			return o.Version
		}
	}
	return 0
}

// Input finds a graph input by name.
func (g *Graph) Input(name string) (ValueInfo, bool) {
	return findValue(g.Inputs, name)
}

// Output finds a graph output by name.
func (g *Graph) Output(name string) (ValueInfo, bool) {
	return findValue(g.Outputs, name)
}

func findValue(values []ValueInfo, name string) (ValueInfo, bool) {
	for _, v := range values {
		if v.Name == name {
			return v, true
		}
	}
	return ValueInfo{}, false
}
