package commits

import (
	"path"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitminer/internal/analyzer"
	"github.com/rohankatakam/gitminer/internal/diff"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

// ModificationKind is how a file changed within a commit
type ModificationKind int

const (
	Added ModificationKind = iota
	Copied
	Renamed
	Deleted
	Modified
	Unknown
)

var kindNames = map[ModificationKind]string{
	Added:    "ADD",
	Copied:   "COPY",
	Renamed:  "RENAME",
	Deleted:  "DELETE",
	Modified: "MODIFY",
	Unknown:  "UNKNOWN",
}

func (k ModificationKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText renders the kind by name in JSON and YAML
func (k ModificationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Modification is one file's change within a commit. Derived values are
// computed on first access and cached; a Modification is not safe for
// concurrent use.
type Modification struct {
	OldPath string
	NewPath string
	Kind    ModificationKind
	Diff    string
	// SourceCode and SourceCodeBefore are nil when the side does not exist
	// or is not text
	SourceCode       *string
	SourceCodeBefore *string

	analyzer analyzer.Analyzer
	logger   logrus.FieldLogger

	counted         bool
	added, removed  int
	parsed          *diff.Parsed
	analyzedAfter   bool
	after           *analyzer.FileAnalysis
	analyzedBefore  bool
	before          *analyzer.FileAnalysis
	methods         []Method
	methodsBefore   []Method
	changedMethods  []Method
	changedComputed bool
}

// NewModification builds a modification; a nil analyzer disables metrics
func NewModification(oldPath, newPath string, kind ModificationKind, patch string,
	before, after *string, a analyzer.Analyzer, logger logrus.FieldLogger) *Modification {
	return &Modification{
		OldPath:          oldPath,
		NewPath:          newPath,
		Kind:             kind,
		Diff:             patch,
		SourceCode:       after,
		SourceCodeBefore: before,
		analyzer:         a,
		logger:           loggerOrDiscard(logger),
	}
}

// Filename is the base name of the new path, or of the old path when the
// file was deleted
func (m *Modification) Filename() string {
	p := m.NewPath
	if p == "" || p == "/dev/null" {
		p = m.OldPath
	}
	return path.Base(p)
}

// Path is the repository-relative path that identifies the file
func (m *Modification) Path() string {
	if m.NewPath == "" || m.NewPath == "/dev/null" {
		return m.OldPath
	}
	return m.NewPath
}

func (m *Modification) count() {
	if !m.counted {
		m.added, m.removed = diff.CountChanges(m.Diff)
		m.counted = true
	}
}

// AddedLines counts "+" lines of the diff
func (m *Modification) AddedLines() int {
	m.count()
	return m.added
}

// RemovedLines counts "-" lines of the diff
func (m *Modification) RemovedLines() int {
	m.count()
	return m.removed
}

// ParsedDiff attributes changed lines to post-image (added) and pre-image
// (deleted) line numbers
func (m *Modification) ParsedDiff() diff.Parsed {
	if m.parsed == nil {
		parsed := diff.Parse(m.Diff)
		m.parsed = &parsed
	}
	return *m.parsed
}

// LanguageSupported reports whether the analyzer recognizes the file
func (m *Modification) LanguageSupported() bool {
	return m.analyzer != nil && m.analyzer.Supports(m.Filename())
}

func (m *Modification) analyze(source *string, side string) *analyzer.FileAnalysis {
	if source == nil || !m.LanguageSupported() {
		return nil
	}
	analysis, err := m.analyzer.Analyze(m.Filename(), *source)
	if err != nil {
		m.logger.WithError(apperrors.AnalysisError(err, "analyze "+side)).
			WithField("file", m.Path()).Debug("Analyzer failed, treating file as having no methods")
		return nil
	}
	return analysis
}

func (m *Modification) afterAnalysis() *analyzer.FileAnalysis {
	if !m.analyzedAfter {
		m.after = m.analyze(m.SourceCode, "after")
		m.methods = toMethods(m.Filename(), m.after)
		m.analyzedAfter = true
	}
	return m.after
}

func (m *Modification) beforeAnalysis() *analyzer.FileAnalysis {
	if !m.analyzedBefore {
		m.before = m.analyze(m.SourceCodeBefore, "before")
		m.methodsBefore = toMethods(m.Filename(), m.before)
		m.analyzedBefore = true
	}
	return m.before
}

func toMethods(filename string, analysis *analyzer.FileAnalysis) []Method {
	methods := []Method{}
	if analysis == nil {
		return methods
	}
	for _, f := range analysis.Functions {
		methods = append(methods, NewMethod(filename, f))
	}
	return methods
}

// Methods lists the functions of the after-image
func (m *Modification) Methods() []Method {
	m.afterAnalysis()
	return m.methods
}

// MethodsBefore lists the functions of the before-image
func (m *Modification) MethodsBefore() []Method {
	m.beforeAnalysis()
	return m.methodsBefore
}

// ChangedMethods are the after-image functions containing an added line and
// the before-image functions containing a deleted line, deduplicated by Key
func (m *Modification) ChangedMethods() []Method {
	if m.changedComputed {
		return m.changedMethods
	}
	m.changedComputed = true
	m.changedMethods = []Method{}
	if !m.LanguageSupported() {
		return m.changedMethods
	}

	parsed := m.ParsedDiff()
	added := diff.Lines(parsed.Added)
	deleted := diff.Lines(parsed.Deleted)

	seen := make(map[string]bool)
	collect := func(methods []Method, lines map[int]struct{}) {
		for _, method := range methods {
			if seen[method.Key()] || !method.contains(lines) {
				continue
			}
			seen[method.Key()] = true
			m.changedMethods = append(m.changedMethods, method)
		}
	}
	collect(m.Methods(), added)
	collect(m.MethodsBefore(), deleted)

	return m.changedMethods
}

// NLOC of the after-image; false when not analyzable
func (m *Modification) NLOC() (int, bool) {
	if a := m.afterAnalysis(); a != nil {
		return a.NLOC, true
	}
	return 0, false
}

// Complexity is the cyclomatic complexity of the after-image
func (m *Modification) Complexity() (int, bool) {
	if a := m.afterAnalysis(); a != nil {
		return a.CyclomaticComplexity, true
	}
	return 0, false
}

// TokenCount of the after-image
func (m *Modification) TokenCount() (int, bool) {
	if a := m.afterAnalysis(); a != nil {
		return a.TokenCount, true
	}
	return 0, false
}

// DeltaRiskProfile compares the risk profiles of the before- and after-image
func (m *Modification) DeltaRiskProfile(prop Property) (deltaLow, deltaHigh int) {
	return DeltaRiskProfile(m.MethodsBefore(), m.Methods(), prop)
}

// Equal compares the stored fields, not the derived caches
func (m *Modification) Equal(other *Modification) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.OldPath == other.OldPath &&
		m.NewPath == other.NewPath &&
		m.Kind == other.Kind &&
		m.Diff == other.Diff &&
		equalOptional(m.SourceCode, other.SourceCode) &&
		equalOptional(m.SourceCodeBefore, other.SourceCodeBefore)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
