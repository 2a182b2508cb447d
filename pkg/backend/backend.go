// Package backend runs the external conversion tools.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	trerrors "github.com/trolo/export/pkg/errors"
	"github.com/trolo/export/pkg/util"
	"github.com/trolo/export/pkg/util/console"
)

// TailSize is how much tool output is kept for error messages.
const TailSize = 4096

// NotStarted reports whether err means the binary could not be run at all.
func NotStarted(err error) bool {
	var execErr *exec.Error
	return errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist)
}

// Exec runs bin with args, streaming its output to the debug log. A failed
// run returns an error carrying the tail of the output.
func Exec(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	logs := console.Writer(console.DebugLevel)
	defer logs.Close()
	tail := util.NewRingBufferWriter(logs, TailSize)
	cmd.Stdout = tail
	cmd.Stderr = tail

	console.Debug("$ " + strings.Join(cmd.Args, " "))
	err := cmd.Run()
	switch {
	case err == nil:
		return nil
	case NotStarted(err):
		return fmt.Errorf("%w: %s: %v", trerrors.ErrBackendUnavailable, bin, err)
	default:
		return fmt.Errorf("%s failed: %w\n\noutput:\n%s", bin, err, tail.String())
	}
}
