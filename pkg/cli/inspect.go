package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/config"
	"github.com/trolo/export/pkg/errors"
)

func newInspectCommand() *cobra.Command {
	var configFlag string
	cmd := &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Show which weights and config an export of MODEL would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectCommand(cmd, args[0], configFlag)
		},
	}
	addConfigFlag(cmd, &configFlag)
	return cmd
}

func inspectCommand(cmd *cobra.Command, identifier string, explicitConfig string) error {
	path, err := newResolver().Resolve(cmd.Context(), identifier)
	if err != nil {
		return err
	}
	record, err := checkpoint.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checkpoint:      %s\n", path)
	if record.Kind == checkpoint.KindGraph {
		fmt.Fprintln(out, "Kind:            onnx graph")
		return nil
	}
	fmt.Fprintln(out, "Kind:            weights")

	_, source, err := record.Weights()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Weights:         %s (%d tensors)\n", source, len(record.Tensors))
	_, embedded := record.EmbeddedConfig()
	fmt.Fprintf(out, "Embedded config: %s\n", yesNo(embedded))

	cfg, err := config.Resolve(explicitConfig, record, identifier)
	switch {
	case errors.IsConfigNotFound(err):
		fmt.Fprintln(out, "Config:          none found, pass --config")
		return nil
	case err != nil:
		return err
	}
	printConfig(out, cfg)
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Config:          %s (%s)\n", cfg.Origin, cfg.Source)
	fmt.Fprintf(out, "Model:           %s, %d classes, %d queries\n", cfg.Model, cfg.NumClasses, cfg.Decoder.NumQueries)
	h, w := cfg.InputSize()
	fmt.Fprintf(out, "Input size:      %dx%d\n", h, w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
