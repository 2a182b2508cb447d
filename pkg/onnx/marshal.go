package onnx

import "google.golang.org/protobuf/encoding/protowire"

// Marshal encodes the model back into ModelProto wire format. Only the
// fields this package reads are written.
func (m *Model) Marshal() []byte {
	var b []byte
	b = appendVarint(b, modelIRVersion, uint64(m.IRVersion))
	b = appendString(b, modelProducerName, m.ProducerName)
	if m.Graph != nil {
		b = appendMessage(b, modelGraph, m.Graph.marshal())
	}
	for _, o := range m.Opsets {
		var ob []byte
		ob = appendString(ob, opsetDomain, o.Domain)
		ob = appendVarint(ob, opsetVersion, uint64(o.Version))
		b = appendMessage(b, modelOpsetImport, ob)
	}
	return b
}

func (g *Graph) marshal() []byte {
	var b []byte
	for _, n := range g.Nodes {
		var nb []byte
		for _, in := range n.Inputs {
			nb = protowire.AppendTag(nb, nodeInput, protowire.BytesType)
			nb = protowire.AppendString(nb, in)
		}
		for _, out := range n.Outputs {
			nb = protowire.AppendTag(nb, nodeOutput, protowire.BytesType)
			nb = protowire.AppendString(nb, out)
		}
		nb = appendString(nb, nodeName, n.Name)
		nb = appendString(nb, nodeOpType, n.OpType)
		nb = appendString(nb, nodeDomain, n.Domain)
		b = appendMessage(b, graphNode, nb)
	}
	b = appendString(b, graphName, g.Name)
	for _, name := range g.Initializers {
		b = appendMessage(b, graphInitializer, appendString(nil, tensorName, name))
	}
	for _, v := range g.Inputs {
		b = appendMessage(b, graphInput, v.marshal())
	}
	for _, v := range g.Outputs {
		b = appendMessage(b, graphOutput, v.marshal())
	}
	return b
}

func (v ValueInfo) marshal() []byte {
	var shape []byte
	for _, d := range v.Dims {
		var db []byte
		if d.Param != "" {
			db = appendString(db, dimParam, d.Param)
		} else {
			db = appendVarint(db, dimValue, uint64(d.Value))
		}
		shape = appendMessage(shape, shapeDim, db)
	}
	var tensorType []byte
	tensorType = appendVarint(tensorType, tensorElemType, uint64(v.ElemType))
	tensorType = appendMessage(tensorType, tensorShape, shape)

	var b []byte
	b = appendString(b, valueInfoName, v.Name)
	b = appendMessage(b, valueInfoType, appendMessage(nil, typeTensorType, tensorType))
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendString skips empty strings, as proto3 does.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
