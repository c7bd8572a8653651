// Package analyzer extracts per-function size, complexity and interface
// metrics from source files. Go is parsed with go/ast; Python, JavaScript and
// TypeScript with tree-sitter grammars.
package analyzer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Registry dispatches to a language analyzer by file extension
type Registry struct {
	byLanguage map[string]Analyzer
}

// compile-time conformance
var _ Analyzer = (*Registry)(nil)

// NewRegistry returns a registry with every built-in language registered
func NewRegistry() *Registry {
	r := &Registry{byLanguage: make(map[string]Analyzer)}
	r.Register("go", goAnalyzer{})
	for _, g := range grammars {
		r.Register(g.name, &treeSitterAnalyzer{grammar: g})
	}
	return r
}

// Register binds an analyzer to a language identifier as returned by DetectLanguage
func (r *Registry) Register(language string, a Analyzer) {
	r.byLanguage[language] = a
}

// Languages lists the registered language identifiers
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.byLanguage))
	for l := range r.byLanguage {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Supports reports whether filename maps to a registered language
func (r *Registry) Supports(filename string) bool {
	_, ok := r.byLanguage[DetectLanguage(filename)]
	return ok
}

// Analyze runs the language analyzer registered for filename
func (r *Registry) Analyze(filename, source string) (*FileAnalysis, error) {
	lang := DetectLanguage(filename)
	a, ok := r.byLanguage[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", filename)
	}

	analysis, err := a.Analyze(filename, source)
	if err != nil {
		return nil, err
	}
	computeFanIn(analysis.Functions)
	return analysis, nil
}

// DetectLanguage returns language identifier from file extension
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))

	langMap := map[string]string{
		".go":  "go",
		".js":  "javascript",
		".jsx": "javascript",
		".mjs": "javascript",
		".cjs": "javascript",
		".ts":  "typescript",
		".mts": "typescript",
		".cts": "typescript",
		".tsx": "tsx",
		".py":  "python",
		".pyi": "python",
		".pyw": "python",
	}

	return langMap[ext]
}

// computeFanIn counts, for every function, how many other functions of the
// same file call it by its short name.
func computeFanIn(funcs []Function) {
	for i := range funcs {
		short := shortName(funcs[i].Name)
		for j := range funcs {
			if i == j {
				continue
			}
			if funcs[j].callees[short] > 0 {
				funcs[i].FanIn++
			}
		}
	}
	for i := range funcs {
		funcs[i].callees = nil
	}
}

func shortName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// fanOut fills FanOut (distinct callees) and GeneralFanOut (call sites)
func (f *Function) fanOut() {
	f.FanOut = len(f.callees)
	f.GeneralFanOut = 0
	for _, n := range f.callees {
		f.GeneralFanOut += n
	}
}

// lineSet records which source rows carry at least one code token
type lineSet map[int]struct{}

func (s lineSet) mark(from, to int) {
	for row := from; row <= to; row++ {
		s[row] = struct{}{}
	}
}

func (s lineSet) countBetween(start, end int) int {
	n := 0
	for row := range s {
		if row >= start && row <= end {
			n++
		}
	}
	return n
}

// collapseSpaces joins a multi-line signature onto one line
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
