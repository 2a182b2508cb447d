// Package tensorrt compiles ONNX graphs into TensorRT engines. Its types
// follow the TensorRT builder API so the export flow reads the same as it
// would against the native bindings; the work is done by trtexec.
package tensorrt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/trolo/export/pkg/backend"
	"github.com/trolo/export/pkg/onnx"
	"github.com/trolo/export/pkg/util/console"
)

// Severity is the minimum level a Logger reports.
type Severity int

const (
	SeverityVerbose Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// Logger receives messages from the builder and parser.
type Logger struct {
	Severity Severity
}

// NewLogger returns a logger at warning level, or verbose when verbose is set.
func NewLogger(verbose bool) *Logger {
	if verbose {
		return &Logger{Severity: SeverityVerbose}
	}
	return &Logger{Severity: SeverityWarning}
}

func (l *Logger) Log(severity Severity, msg string) {
	if severity < l.Severity {
		return
	}
	switch severity {
	case SeverityError:
		console.Error(msg)
	case SeverityWarning:
		console.Warn(msg)
	default:
		console.Debug(msg)
	}
}

// NetworkFlag configures network creation.
type NetworkFlag uint32

const (
	ExplicitBatch NetworkFlag = 1 << iota
)

// Network is the network definition an OnnxParser fills in.
type Network struct {
	Flags NetworkFlag
	// Source is the ONNX file the network was parsed from.
	Source string
	Inputs []onnx.ValueInfo
	Layers int
}

// BuilderFlag switches optional builder behaviour.
type BuilderFlag uint32

const (
	FP16 BuilderFlag = 1 << iota
	INT8
)

// BuilderConfig holds build options.
type BuilderConfig struct {
	flags BuilderFlag
	// WorkspaceMiB caps scratch memory; zero leaves trtexec's default.
	WorkspaceMiB int
}

func (c *BuilderConfig) SetFlag(f BuilderFlag) {
	c.flags |= f
}

func (c *BuilderConfig) GetFlag(f BuilderFlag) bool {
	return c.flags&f != 0
}

// Builder compiles networks into serialised engines.
type Builder interface {
	CreateNetwork(flags NetworkFlag) *Network
	CreateBuilderConfig() *BuilderConfig
	BuildSerializedNetwork(ctx context.Context, network *Network, config *BuilderConfig) ([]byte, error)
}

// OnnxParser populates a network from an ONNX file.
type OnnxParser struct {
	network *Network
	logger  *Logger
}

func NewOnnxParser(network *Network, logger *Logger) *OnnxParser {
	return &OnnxParser{network: network, logger: logger}
}

// ParseFromFile reads the graph at path into the network.
func (p *OnnxParser) ParseFromFile(path string) error {
	m, err := onnx.ParseFile(path)
	if err != nil {
		p.logger.Log(SeverityError, err.Error())
		return err
	}
	if m.Graph == nil {
		return fmt.Errorf("%s has no graph", path)
	}
	p.network.Source = path
	p.network.Inputs = m.Graph.Inputs
	p.network.Layers = len(m.Graph.Nodes)
	p.logger.Log(SeverityInfo, fmt.Sprintf("Parsed %s: %d layers, opset %d", path, p.network.Layers, m.DefaultOpset()))
	return nil
}

// Trtexec builds engines by running the trtexec tool.
type Trtexec struct {
	Bin    string
	Device int
	logger *Logger
}

func NewTrtexecBuilder(bin string, device int, logger *Logger) *Trtexec {
	return &Trtexec{Bin: bin, Device: device, logger: logger}
}

func (b *Trtexec) CreateNetwork(flags NetworkFlag) *Network {
	return &Network{Flags: flags}
}

func (b *Trtexec) CreateBuilderConfig() *BuilderConfig {
	return &BuilderConfig{}
}

// BuildSerializedNetwork returns the engine bytes, or nil when trtexec
// wrote nothing.
func (b *Trtexec) BuildSerializedNetwork(ctx context.Context, network *Network, config *BuilderConfig) ([]byte, error) {
	if network.Source == "" {
		return nil, fmt.Errorf("network has not been parsed")
	}
	if network.Flags&ExplicitBatch == 0 {
		return nil, fmt.Errorf("only explicit batch networks are supported")
	}
	dir, err := os.MkdirTemp("", "trolo-trt-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)
	engine := filepath.Join(dir, "model.engine")

	args := []string{
		"--onnx=" + network.Source,
		"--saveEngine=" + engine,
		"--device=" + strconv.Itoa(b.Device),
	}
	if config.GetFlag(FP16) {
		args = append(args, "--fp16")
	}
	if config.GetFlag(INT8) {
		args = append(args, "--int8")
	}
	if config.WorkspaceMiB > 0 {
		args = append(args, fmt.Sprintf("--memPoolSize=workspace:%d", config.WorkspaceMiB))
	}
	if b.logger.Severity == SeverityVerbose {
		args = append(args, "--verbose")
	}
	if err := backend.Exec(ctx, b.Bin, args...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(engine)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
