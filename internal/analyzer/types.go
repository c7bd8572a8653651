package analyzer

// Function holds the metrics of one function in one file revision
type Function struct {
	Name            string   `json:"name"`
	LongName        string   `json:"long_name"`
	StartLine       int      `json:"start_line"`
	EndLine         int      `json:"end_line"`
	NLOC            int      `json:"nloc"`
	Complexity      int      `json:"complexity"`
	TokenCount      int      `json:"token_count"`
	Parameters      []string `json:"parameters"`
	FanIn           int      `json:"fan_in"`
	FanOut          int      `json:"fan_out"`
	GeneralFanOut   int      `json:"general_fan_out"`
	Length          int      `json:"length"`
	TopNestingLevel int      `json:"top_nesting_level"`

	// callees is only used while computing fan-in/fan-out
	callees map[string]int
}

// FileAnalysis contains the file-level counts and every function found
type FileAnalysis struct {
	Language             string     `json:"language"`
	NLOC                 int        `json:"nloc"`
	CyclomaticComplexity int        `json:"cyclomatic_complexity"`
	TokenCount           int        `json:"token_count"`
	Functions            []Function `json:"functions"`
}

// Analyzer extracts structural metrics from the full text of one file revision
type Analyzer interface {
	// Supports reports whether the file's language is recognized
	Supports(filename string) bool
	// Analyze parses source as the language implied by filename
	Analyze(filename string, source string) (*FileAnalysis, error)
}
