package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"gopkg.in/yaml.v2"

	"github.com/trolo/export/pkg/tensor"
)

// zipMagic starts every checkpoint written by torch.save since torch 1.6.
var zipMagic = []byte("PK\x03\x04")

func isTorchArchive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()
	head := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		// too short to be an archive, let the safetensors reader report it
		return false, nil
	}
	return bytes.Equal(head, zipMagic), nil
}

// readTorch loads a torch.save archive. Tensors under "ema" and "model" are
// flattened into dotted names ("ema.module.<param>", "model.<param>") and a
// "cfg" entry becomes the embedded config blob.
func readTorch(path string) (tensor.StateDict, map[string]string, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, nil, err
	}
	root, ok := obj.(*types.Dict)
	if !ok {
		return nil, nil, fmt.Errorf("expected a dict at the top level, got %T", obj)
	}

	state := tensor.StateDict{}
	for _, key := range []string{"ema", "model"} {
		v, ok := root.Get(key)
		if !ok {
			continue
		}
		if err := flattenTensors(state, key+".", v); err != nil {
			return nil, nil, err
		}
	}

	metadata := map[string]string{}
	if cfg, ok := root.Get(ConfigKey); ok && cfg != nil {
		blob, err := configBlob(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read embedded config: %w", err)
		}
		metadata[ConfigKey] = blob
	}
	return state, metadata, nil
}

func flattenTensors(state tensor.StateDict, prefix string, v interface{}) error {
	switch v := v.(type) {
	case *pytorch.Tensor:
		t, err := fromTorch(v)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", prefix[:len(prefix)-1], err)
		}
		state[prefix[:len(prefix)-1]] = t
	case *types.Dict, *types.OrderedDict:
		entries, err := mappingEntries(v)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := flattenTensors(state, prefix+e.key+".", e.value); err != nil {
				return err
			}
		}
	}
	// anything else (step counters, updates, ...) carries no weights
	return nil
}

type entry struct {
	key   string
	value interface{}
}

func mappingEntries(v interface{}) ([]entry, error) {
	var entries []entry
	switch m := v.(type) {
	case *types.Dict:
		for _, k := range m.Keys() {
			value, _ := m.Get(k)
			entries = append(entries, entry{key: fmt.Sprint(k), value: value})
		}
	case *types.OrderedDict:
		for k, e := range m.Map {
			entries = append(entries, entry{key: fmt.Sprint(k), value: e.Value})
		}
	default:
		return nil, fmt.Errorf("expected a dict, got %T", v)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries, nil
}

func fromTorch(t *pytorch.Tensor) (*tensor.Tensor, error) {
	shape := append([]int{}, t.Size...)
	n := tensor.Numel(shape)
	if !contiguous(shape, t.Stride) {
		return nil, fmt.Errorf("non-contiguous tensor with size %v and stride %v", shape, t.Stride)
	}
	start, end := t.StorageOffset, t.StorageOffset+n

	var dtype tensor.DType
	var buf bytes.Buffer
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.F32
		for _, f := range s.Data[start:end] {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
		}
	case *pytorch.HalfStorage:
		// half and bfloat16 storages are widened to float32 on load
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.F32
		for _, f := range s.Data[start:end] {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
		}
	case *pytorch.BFloat16Storage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.F32
		for _, f := range s.Data[start:end] {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
		}
	case *pytorch.DoubleStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.F64
		for _, f := range s.Data[start:end] {
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(f))
		}
	case *pytorch.LongStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.I64
		_ = binary.Write(&buf, binary.LittleEndian, s.Data[start:end])
	case *pytorch.IntStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.I32
		_ = binary.Write(&buf, binary.LittleEndian, s.Data[start:end])
	case *pytorch.ByteStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.U8
		buf.Write(s.Data[start:end])
	case *pytorch.BoolStorage:
		if end > len(s.Data) {
			return nil, errStorageBounds(start, end, len(s.Data))
		}
		dtype = tensor.Bool
		_ = binary.Write(&buf, binary.LittleEndian, s.Data[start:end])
	default:
		return nil, fmt.Errorf("unsupported storage %T", t.Source)
	}
	return &tensor.Tensor{DType: dtype, Shape: shape, Data: buf.Bytes()}, nil
}

func errStorageBounds(start, end, size int) error {
	return fmt.Errorf("elements [%d, %d) outside storage of %d", start, end, size)
}

// contiguous reports whether stride is the row-major stride of shape.
// Dimensions of size one may carry any stride.
func contiguous(shape []int, stride []int) bool {
	if len(stride) != len(shape) {
		return false
	}
	expected := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] != 1 && stride[i] != expected {
			return false
		}
		expected *= shape[i]
	}
	return true
}

// configBlob turns a pickled config (a YAML string or a nested dict) into a
// YAML document.
func configBlob(v interface{}) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	plain, err := toPlain(v)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(plain)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func toPlain(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case *types.Dict, *types.OrderedDict:
		entries, err := mappingEntries(v)
		if err != nil {
			return nil, err
		}
		m := make(map[string]interface{}, len(entries))
		for _, e := range entries {
			p, err := toPlain(e.value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.key, err)
			}
			m[e.key] = p
		}
		return m, nil
	case *types.List:
		return toPlainSlice(*v)
	case *types.Tuple:
		return toPlainSlice(*v)
	case string, bool, int, int64, float64, nil:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func toPlainSlice(items []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(items))
	for i, item := range items {
		p, err := toPlain(item)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
