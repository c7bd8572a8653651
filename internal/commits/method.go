package commits

import (
	"strings"

	"github.com/rohankatakam/gitminer/internal/analyzer"
)

// Property is a method attribute scored by the Delta Maintainability Model
type Property int

const (
	UnitSize Property = iota
	UnitComplexity
	UnitInterfacing
)

// Low-risk thresholds (inclusive)
const (
	SizeThreshold        = 15
	ComplexityThreshold  = 5
	InterfacingThreshold = 2
)

func (p Property) String() string {
	switch p {
	case UnitSize:
		return "unit_size"
	case UnitComplexity:
		return "unit_complexity"
	case UnitInterfacing:
		return "unit_interfacing"
	default:
		return "unknown"
	}
}

// Method is one function as seen in one revision of a file
type Method struct {
	Name            string   `json:"name" yaml:"name"`
	LongName        string   `json:"long_name" yaml:"long_name"`
	Filename        string   `json:"filename" yaml:"filename"`
	NLOC            int      `json:"nloc" yaml:"nloc"`
	Complexity      int      `json:"complexity" yaml:"complexity"`
	TokenCount      int      `json:"token_count" yaml:"token_count"`
	Parameters      []string `json:"parameters" yaml:"parameters"`
	StartLine       int      `json:"start_line" yaml:"start_line"`
	EndLine         int      `json:"end_line" yaml:"end_line"`
	FanIn           int      `json:"fan_in" yaml:"fan_in"`
	FanOut          int      `json:"fan_out" yaml:"fan_out"`
	GeneralFanOut   int      `json:"general_fan_out" yaml:"general_fan_out"`
	Length          int      `json:"length" yaml:"length"`
	TopNestingLevel int      `json:"top_nesting_level" yaml:"top_nesting_level"`
}

// NewMethod copies analyzer output for filename
func NewMethod(filename string, f analyzer.Function) Method {
	params := f.Parameters
	if params == nil {
		params = []string{}
	}
	return Method{
		Name:            f.Name,
		LongName:        f.LongName,
		Filename:        filename,
		NLOC:            f.NLOC,
		Complexity:      f.Complexity,
		TokenCount:      f.TokenCount,
		Parameters:      params,
		StartLine:       f.StartLine,
		EndLine:         f.EndLine,
		FanIn:           f.FanIn,
		FanOut:          f.FanOut,
		GeneralFanOut:   f.GeneralFanOut,
		Length:          f.Length,
		TopNestingLevel: f.TopNestingLevel,
	}
}

// Key identifies the logical unit across revisions: name plus parameters.
// Line ranges and metrics are not part of it.
func (m Method) Key() string {
	return m.Name + "(" + strings.Join(m.Parameters, ",") + ")"
}

// Equal compares identity only
func (m Method) Equal(other Method) bool {
	if m.Name != other.Name || len(m.Parameters) != len(other.Parameters) {
		return false
	}
	for i := range m.Parameters {
		if m.Parameters[i] != other.Parameters[i] {
			return false
		}
	}
	return true
}

// IsLowRisk classifies the method against the threshold for prop
func (m Method) IsLowRisk(prop Property) bool {
	switch prop {
	case UnitSize:
		return m.NLOC <= SizeThreshold
	case UnitComplexity:
		return m.Complexity <= ComplexityThreshold
	case UnitInterfacing:
		return len(m.Parameters) <= InterfacingThreshold
	default:
		return false
	}
}

func (m Method) contains(lines map[int]struct{}) bool {
	for line := range lines {
		if line >= m.StartLine && line <= m.EndLine {
			return true
		}
	}
	return false
}
