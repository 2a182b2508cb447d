package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/trolo/export/pkg/tensor"
)

// Checkpoints use the safetensors layout:
//
//	[8 bytes: header size, uint64 LE]
//	[header: JSON object, tensor name -> {dtype, shape, data_offsets}, plus "__metadata__"]
//	[tensor data]
const (
	metadataKey   = "__metadata__"
	maxHeaderSize = 100 << 20
)

type tensorInfo struct {
	DType       tensor.DType `json:"dtype"`
	Shape       []int        `json:"shape"`
	DataOffsets [2]int64     `json:"data_offsets"`
}

// readSafetensors parses a whole safetensors file into a state dict and its metadata.
func readSafetensors(path string) (tensor.StateDict, map[string]string, error) {
	//nolint:gosec // G304: loading a user supplied checkpoint is the point
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseSafetensors(data)
}

func parseSafetensors(data []byte) (tensor.StateDict, map[string]string, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("file too short for a header (%d bytes)", len(data))
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > maxHeaderSize || headerSize > uint64(len(data)-8) {
		return nil, nil, fmt.Errorf("invalid header size %d", headerSize)
	}
	headerEnd := 8 + int64(headerSize)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	metadata := map[string]string{}
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	body := data[headerEnd:]
	state := make(tensor.StateDict, len(raw))
	for name, msg := range raw {
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if !info.DType.Valid() {
			return nil, nil, fmt.Errorf("tensor %q: unsupported dtype %q", name, info.DType)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > int64(len(body)) {
			return nil, nil, fmt.Errorf("tensor %q: offsets [%d, %d) outside data section of %d bytes", name, start, end, len(body))
		}
		want := int64(tensor.Numel(info.Shape) * info.DType.Size())
		if end-start != want {
			return nil, nil, fmt.Errorf("tensor %q: %d bytes for %s%v, want %d", name, end-start, info.DType, info.Shape, want)
		}
		state[name] = &tensor.Tensor{
			DType: info.DType,
			Shape: append([]int{}, info.Shape...),
			Data:  body[start:end],
		}
	}
	return state, metadata, nil
}

// writeSafetensors serialises state and metadata. Tensors are laid out in key order.
func writeSafetensors(w io.Writer, state tensor.StateDict, metadata map[string]string) error {
	header := map[string]interface{}{}
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	names := state.Keys()
	sort.Strings(names)
	var offset int64
	for _, name := range names {
		t := state[name]
		size := int64(len(t.Data))
		header[name] = tensorInfo{DType: t.DType, Shape: t.Shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// pad so tensor data starts 8-byte aligned
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(headerJSON)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	if _, err := w.Write(headerJSON); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.Write(state[name].Data); err != nil {
			return fmt.Errorf("failed to write tensor %q: %w", name, err)
		}
	}
	return nil
}
