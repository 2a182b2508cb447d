package onnx

import (
	"errors"
	"fmt"
)

// Expectation describes what an exported detector graph must declare.
type Expectation struct {
	Inputs  []string
	Outputs []string
	// DynamicAxes maps an input or output name to the axes that must be
	// symbolic. Names the graph does not declare are skipped, as the
	// exporter drops them too.
	DynamicAxes map[string][]int
	// Opset, when non-zero, is the default-domain opset the graph must use.
	Opset int64
}

// Check verifies that m is a well-formed graph meeting want. All problems
// found are reported together.
func Check(m *Model, want Expectation) error {
	var problems []error
	if m.IRVersion <= 0 {
		problems = append(problems, fmt.Errorf("missing IR version"))
	}
	opset := m.DefaultOpset()
	switch {
	case opset == 0:
		problems = append(problems, fmt.Errorf("no opset imported for the default domain"))
	case want.Opset != 0 && opset != want.Opset:
		problems = append(problems, fmt.Errorf("opset %d, expected %d", opset, want.Opset))
	}
	if m.Graph == nil || len(m.Graph.Nodes) == 0 {
		return errors.Join(append(problems, fmt.Errorf("graph has no nodes"))...)
	}
	g := m.Graph

	defined := map[string]bool{}
	for _, v := range g.Inputs {
		defined[v.Name] = true
	}
	for _, name := range g.Initializers {
		defined[name] = true
	}
	// nodes are stored in topological order
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if in != "" && !defined[in] {
				problems = append(problems, fmt.Errorf("node %d (%s) reads undefined value %q", i, n.OpType, in))
			}
		}
		for _, out := range n.Outputs {
			defined[out] = true
		}
	}
	for _, out := range g.Outputs {
		if !defined[out.Name] {
			problems = append(problems, fmt.Errorf("output %q is never produced", out.Name))
		}
	}

	for _, name := range want.Inputs {
		if _, ok := g.Input(name); !ok {
			problems = append(problems, fmt.Errorf("missing input %q", name))
		}
	}
	for _, name := range want.Outputs {
		if _, ok := g.Output(name); !ok {
			problems = append(problems, fmt.Errorf("missing output %q", name))
		}
	}
	for name, axes := range want.DynamicAxes {
		v, ok := g.Input(name)
		if !ok {
			v, ok = g.Output(name)
		}
		if !ok {
			continue
		}
		for _, axis := range axes {
			if axis >= len(v.Dims) || !v.Dims[axis].IsDynamic() {
				problems = append(problems, fmt.Errorf("axis %d of %q is not dynamic", axis, name))
			}
		}
	}
	return errors.Join(problems...)
}

// CheckFile parses the graph at path and checks it.
func CheckFile(path string, want Expectation) error {
	m, err := ParseFile(path)
	if err != nil {
		return err
	}
	return Check(m, want)
}
