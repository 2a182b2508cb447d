package global

var (
	Version   = "0.0.1"
	BuildTime = "none"
	Verbose   = false
	// Machine switches console messages to timestamped, uncolored lines.
	Machine = false

	// PythonBin and BridgeModule locate the torch-side export bridge.
	PythonBin    = "python3"
	BridgeModule = "trolo.export.bridge"

	OnnxsimBin = "onnxsim"
	TrtexecBin = "trtexec"

	// OrtLibraryPath is the onnxruntime shared library used by --verify.
	OrtLibraryPath = ""

	CacheDir = "~/.cache/trolo"
	// WeightsURL is where pretrained checkpoints missing from CacheDir are
	// downloaded from. Empty disables downloads.
	WeightsURL = ""

	DefaultInputSize = 640
	DefaultOpset     = 16
	DefaultDevice    = "cpu"
)
