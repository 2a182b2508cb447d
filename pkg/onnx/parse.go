package onnx

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from onnx.proto.
const (
	modelIRVersion    protowire.Number = 1
	modelProducerName protowire.Number = 2
	modelGraph        protowire.Number = 7
	modelOpsetImport  protowire.Number = 8

	opsetDomain  protowire.Number = 1
	opsetVersion protowire.Number = 2

	graphNode        protowire.Number = 1
	graphName        protowire.Number = 2
	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	nodeInput  protowire.Number = 1
	nodeOutput protowire.Number = 2
	nodeName   protowire.Number = 3
	nodeOpType protowire.Number = 4
	nodeDomain protowire.Number = 7

	tensorName protowire.Number = 8

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensorType protowire.Number = 1
	tensorElemType protowire.Number = 1
	tensorShape    protowire.Number = 2
	shapeDim       protowire.Number = 1
	dimValue       protowire.Number = 1
	dimParam       protowire.Number = 2
)

// ParseFile reads and parses the ONNX model at path.
func ParseFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a serialised ModelProto.
func Parse(data []byte) (*Model, error) {
	m := &Model{}
	err := decode(data, func(f field) error {
		switch f.num {
		case modelIRVersion:
			v, err := f.int()
			m.IRVersion = v
			return err
		case modelProducerName:
			s, err := f.string()
			m.ProducerName = s
			return err
		case modelOpsetImport:
			o, err := parseOpset(f)
			m.Opsets = append(m.Opsets, o)
			return err
		case modelGraph:
			b, err := f.message()
			if err != nil {
				return err
			}
			m.Graph, err = parseGraph(b)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func parseOpset(f field) (Opset, error) {
	var o Opset
	b, err := f.message()
	if err != nil {
		return o, err
	}
	err = decode(b, func(f field) error {
		switch f.num {
		case opsetDomain:
			s, err := f.string()
			o.Domain = s
			return err
		case opsetVersion:
			v, err := f.int()
			o.Version = v
			return err
		}
		return nil
	})
	return o, err
}

func parseGraph(b []byte) (*Graph, error) {
	g := &Graph{}
	err := decode(b, func(f field) error {
		switch f.num {
		case graphName:
			s, err := f.string()
			g.Name = s
			return err
		case graphNode:
			n, err := parseNode(f)
			g.Nodes = append(g.Nodes, n)
			return err
		case graphInitializer:
			name, err := parseInitializerName(f)
			g.Initializers = append(g.Initializers, name)
			return err
		case graphInput:
			v, err := parseValueInfo(f)
			g.Inputs = append(g.Inputs, v)
			return err
		case graphOutput:
			v, err := parseValueInfo(f)
			g.Outputs = append(g.Outputs, v)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	return g, nil
}

func parseNode(f field) (Node, error) {
	var n Node
	b, err := f.message()
	if err != nil {
		return n, err
	}
	err = decode(b, func(f field) error {
		s, err := f.string()
		switch f.num {
		case nodeInput:
			n.Inputs = append(n.Inputs, s)
		case nodeOutput:
			n.Outputs = append(n.Outputs, s)
		case nodeName:
			n.Name = s
		case nodeOpType:
			n.OpType = s
		case nodeDomain:
			n.Domain = s
		default:
			return nil
		}
		return err
	})
	return n, err
}

func parseInitializerName(f field) (string, error) {
	b, err := f.message()
	if err != nil {
		return "", err
	}
	var name string
	err = decode(b, func(f field) error {
		if f.num == tensorName {
			s, err := f.string()
			name = s
			return err
		}
		return nil
	})
	return name, err
}

func parseValueInfo(f field) (ValueInfo, error) {
	var v ValueInfo
	b, err := f.message()
	if err != nil {
		return v, err
	}
	err = decode(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			s, err := f.string()
			v.Name = s
			return err
		case valueInfoType:
			return nested(f, typeTensorType, func(tensorType field) error {
				return decodeMessage(tensorType, func(f field) error {
					switch f.num {
					case tensorElemType:
						e, err := f.int()
						v.ElemType = int32(e)
						return err
					case tensorShape:
						return decodeMessage(f, func(f field) error {
							if f.num != shapeDim {
								return nil
							}
							d, err := parseDim(f)
							v.Dims = append(v.Dims, d)
							return err
						})
					}
					return nil
				})
			})
		}
		return nil
	})
	return v, err
}

func parseDim(f field) (Dim, error) {
	var d Dim
	err := decodeMessage(f, func(f field) error {
		switch f.num {
		case dimValue:
			v, err := f.int()
			d.Value = v
			return err
		case dimParam:
			s, err := f.string()
			d.Param = s
			return err
		}
		return nil
	})
	return d, err
}
