package commits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitminer/internal/analyzer"
	"github.com/rohankatakam/gitminer/internal/diff"
)

func ptr(s string) *string { return &s }

const twoFunctions = "def f(a):\n    return a\n\n\ndef g(b):\n    return b\n"

func TestModification_Filename(t *testing.T) {
	tests := []struct {
		oldPath, newPath string
		want             string
	}{
		{"", "src/pkg/a.py", "a.py"},
		{"src/old.py", "src/new.py", "new.py"},
		{"lib/gone.js", "", "gone.js"},
		{"lib/gone.js", "/dev/null", "gone.js"},
	}
	for _, tt := range tests {
		m := NewModification(tt.oldPath, tt.newPath, Modified, "", nil, nil, nil, nil)
		assert.Equal(t, tt.want, m.Filename())
	}
}

func TestModification_Counts(t *testing.T) {
	patch := "@@ -1,2 +1,3 @@\n line\n-old\n+new\n+more"
	m := NewModification("a.txt", "a.txt", Modified, patch, nil, nil, nil, nil)

	assert.Equal(t, 2, m.AddedLines())
	assert.Equal(t, 1, m.RemovedLines())
	assert.Equal(t, []diff.Line{{Number: 2, Text: "new"}, {Number: 3, Text: "more"}}, m.ParsedDiff().Added)
	assert.Equal(t, []diff.Line{{Number: 2, Text: "old"}}, m.ParsedDiff().Deleted)
}

func TestModification_BlankLineOutsideFunctions(t *testing.T) {
	after := "def f(a):\n    return a\n\n\n\ndef g(b):\n    return b\n"
	patch := "@@ -1,6 +1,7 @@\n def f(a):\n     return a\n \n+\n \n def g(b):\n     return b"

	m := NewModification("a.py", "a.py", Modified, patch, ptr(twoFunctions), ptr(after), analyzer.NewRegistry(), nil)
	require.True(t, m.LanguageSupported())
	require.Len(t, m.Methods(), 2)
	require.Len(t, m.MethodsBefore(), 2)

	assert.Empty(t, m.ChangedMethods())
}

func TestModification_ChangedMethods(t *testing.T) {
	after := "def f(a):\n    return a + 1\n\n\ndef g(b):\n    pass\n"
	patch := "@@ -1,6 +1,6 @@\n def f(a):\n-    return a\n+    return a + 1\n \n \n def g(b):\n-    return b\n+    pass"

	m := NewModification("a.py", "a.py", Modified, patch, ptr(twoFunctions), ptr(after), analyzer.NewRegistry(), nil)

	changed := m.ChangedMethods()
	require.Len(t, changed, 2)
	assert.Equal(t, "f", changed[0].Name)
	assert.Equal(t, "g", changed[1].Name)
	assert.Equal(t, "a.py", changed[0].Filename)

	nloc, ok := m.NLOC()
	assert.True(t, ok)
	assert.Equal(t, 4, nloc)
	complexity, ok := m.Complexity()
	assert.True(t, ok)
	assert.Equal(t, 2, complexity)
}

func TestModification_DeletedFileAttributesToBefore(t *testing.T) {
	patch := "@@ -1,6 +0,0 @@\n-def f(a):\n-    return a\n-\n-\n-def g(b):\n-    return b"
	m := NewModification("pkg/a.py", "", Deleted, patch, ptr(twoFunctions), nil, analyzer.NewRegistry(), nil)

	assert.Empty(t, m.Methods())
	assert.Len(t, m.MethodsBefore(), 2)
	assert.Len(t, m.ChangedMethods(), 2)

	_, ok := m.NLOC()
	assert.False(t, ok)

	dLow, dHigh := m.DeltaRiskProfile(UnitSize)
	assert.Equal(t, -4, dLow)
	assert.Equal(t, 0, dHigh)
}

func TestModification_UnsupportedLanguage(t *testing.T) {
	patch := "@@ -1 +1 @@\n-a\n+b"
	m := NewModification("README.md", "README.md", Modified, patch, ptr("a\n"), ptr("b\n"), analyzer.NewRegistry(), nil)

	assert.False(t, m.LanguageSupported())
	assert.Empty(t, m.Methods())
	assert.Empty(t, m.ChangedMethods())
	_, ok := m.TokenCount()
	assert.False(t, ok)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Supports(string) bool { return true }

func (failingAnalyzer) Analyze(string, string) (*analyzer.FileAnalysis, error) {
	return nil, errors.New("boom")
}

func TestModification_AnalyzerFailureIsRecovered(t *testing.T) {
	m := NewModification("a.py", "a.py", Modified, "@@ -1 +1 @@\n-x\n+y", ptr("x\n"), ptr("y\n"), failingAnalyzer{}, nil)

	assert.True(t, m.LanguageSupported())
	assert.Empty(t, m.Methods())
	assert.Empty(t, m.ChangedMethods())
	_, ok := m.Complexity()
	assert.False(t, ok)
}

func TestModification_Equal(t *testing.T) {
	a := NewModification("a.py", "a.py", Modified, "@@ -1 +1 @@\n-x\n+y", ptr("x\n"), ptr("y\n"), nil, nil)
	b := NewModification("a.py", "a.py", Modified, "@@ -1 +1 @@\n-x\n+y", ptr("x\n"), ptr("y\n"), analyzer.NewRegistry(), nil)
	c := NewModification("a.py", "a.py", Modified, "@@ -1 +1 @@\n-x\n+y", ptr("x\n"), nil, nil, nil)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestModificationKind_String(t *testing.T) {
	assert.Equal(t, "ADD", Added.String())
	assert.Equal(t, "COPY", Copied.String())
	assert.Equal(t, "RENAME", Renamed.String())
	assert.Equal(t, "DELETE", Deleted.String())
	assert.Equal(t, "MODIFY", Modified.String())
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "UNKNOWN", ModificationKind(99).String())

	text, err := Renamed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "RENAME", string(text))
}
