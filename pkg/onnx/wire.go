package onnx

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded key/value pair of a protobuf message.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) int() (int64, error) {
	if f.typ != protowire.VarintType {
		return 0, fmt.Errorf("field %d: expected varint, got wire type %d", f.num, f.typ)
	}
	return int64(f.varint), nil
}

func (f field) message() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("field %d: expected length-delimited value, got wire type %d", f.num, f.typ)
	}
	return f.bytes, nil
}

func (f field) string() (string, error) {
	b, err := f.message()
	return string(b), err
}

// decode walks the fields of a message, skipping values of wire types the
// checker never reads.
func decode(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeMessage(f field, fn func(field) error) error {
	b, err := f.message()
	if err != nil {
		return err
	}
	return decode(b, fn)
}

// nested calls fn for every field numbered num inside f.
func nested(f field, num protowire.Number, fn func(field) error) error {
	return decodeMessage(f, func(inner field) error {
		if inner.num != num {
			return nil
		}
		return fn(inner)
	})
}
