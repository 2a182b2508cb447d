// Package onnxsim simplifies ONNX graphs with the onnx-simplifier CLI.
package onnxsim

import (
	"context"
	"fmt"

	"github.com/trolo/export/pkg/backend"
	"github.com/trolo/export/pkg/util/files"
)

// Simplifier rewrites the graph at in into a simplified graph at out.
type Simplifier interface {
	Simplify(ctx context.Context, in string, out string) error
}

// CLI runs `onnxsim in out`.
type CLI struct {
	Bin string
}

func (c *CLI) Simplify(ctx context.Context, in string, out string) error {
	if err := backend.Exec(ctx, c.Bin, in, out); err != nil {
		return err
	}
	if !files.IsFile(out) {
		return fmt.Errorf("%s did not write %s", c.Bin, out)
	}
	return nil
}
