package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trolo/export/pkg/checkpoint"
	"github.com/trolo/export/pkg/global"
	"github.com/trolo/export/pkg/util"
	"github.com/trolo/export/pkg/util/console"
)

func NewRootCommand() (*cobra.Command, error) {
	rootCmd := cobra.Command{
		Use:     "trolo-export",
		Short:   "Export trained detection models to deployable formats",
		Version: fmt.Sprintf("%s (built %s)", global.Version, global.BuildTime),
		// This stops errors being printed because we print them in cmd/trolo-export/main.go
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			console.SetLevel(util.GetEnvOrDefault("TROLO_LOG_LEVEL", console.InfoLevel, console.ParseLevel))
			if global.Verbose {
				console.SetLevel(console.DebugLevel)
			}
			console.SetMachine(global.Machine)
			cmd.SilenceUsage = true
		},
		SilenceErrors: true,
	}
	setPersistentFlags(&rootCmd)

	rootCmd.AddCommand(
		newExportCommand(),
		newInspectCommand(),
		newConfigsCommand(),
	)

	return &rootCmd, nil
}

func setPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&global.Verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVar(&global.Machine, "machine", util.GetEnvOrDefault("TROLO_MACHINE_OUTPUT", false, strconv.ParseBool), "Timestamped, uncolored log lines for CI and log collectors")
	flags.StringVar(&global.PythonBin, "python", envString("TROLO_PYTHON", global.PythonBin), "Python interpreter with torch installed")
	flags.StringVar(&global.BridgeModule, "bridge-module", envString("TROLO_BRIDGE_MODULE", global.BridgeModule), "Python module that performs torch exports")
	flags.StringVar(&global.OnnxsimBin, "onnxsim", envString("TROLO_ONNXSIM", global.OnnxsimBin), "onnxsim executable")
	flags.StringVar(&global.TrtexecBin, "trtexec", envString("TROLO_TRTEXEC", global.TrtexecBin), "trtexec executable")
	flags.StringVar(&global.OrtLibraryPath, "ort-lib", envString("ONNXRUNTIME_SHARED_LIBRARY_PATH", global.OrtLibraryPath), "onnxruntime shared library used by --verify")
	flags.StringVar(&global.CacheDir, "cache-dir", envString("TROLO_CACHE_DIR", global.CacheDir), "Directory holding pretrained checkpoints")
	flags.StringVar(&global.WeightsURL, "weights-url", envString("TROLO_WEIGHTS_URL", global.WeightsURL), "Base URL to download missing pretrained checkpoints from")
	_ = flags.MarkHidden("bridge-module")
}

func envString(key string, defaultVal string) string {
	return util.GetEnvOrDefault(key, defaultVal, func(s string) (string, error) { return s, nil })
}

func addConfigFlag(cmd *cobra.Command, config *string) {
	cmd.Flags().StringVarP(config, "config", "c", "", "Model config file or built-in config name, e.g. dfine-n")
}

func newResolver() *checkpoint.Resolver {
	return &checkpoint.Resolver{
		CacheDir: global.CacheDir,
		BaseURL:  global.WeightsURL,
		Fetcher:  checkpoint.NewHTTPFetcher(os.Stderr),
	}
}
