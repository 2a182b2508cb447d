package export

// Metadata records how an artifact was produced.
type Metadata struct {
	DynamicAxes map[string]map[int]string
	Precision   Precision
	Opset       int
	InputShape  []int
}

// Artifact is an exported file.
type Artifact struct {
	Path     string
	Format   Format
	Metadata Metadata
}

// Severity grades the outcome of an export that did not fail outright.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "ok"
}

// Result is the outcome of an export call. A missing artifact is reported
// here with SeverityError; failures that stop the export are returned as
// errors instead.
type Result struct {
	Artifact *Artifact
	Severity Severity
	Message  string
}

func (r *Result) OK() bool {
	return r.Severity == SeverityOK
}
