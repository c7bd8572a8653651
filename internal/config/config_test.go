package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

const sampleConfig = `repositories:
  - ./repo
  - https://github.com/acme/project.git
backend: go-git
selection:
  since: "2024-01-01"
  to: "2024-01-31T18:00:00Z"
  only_authors: [alice, bob]
  only_modifications_with_file_types: [".py"]
  order: reverse
  only_no_merge: true
analysis:
  cache_path: /tmp/gitminer-cache.db
log:
  level: debug
output:
  format: yaml
  include_methods: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitminer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"./repo", "https://github.com/acme/project.git"}, cfg.Repositories)
	assert.Equal(t, BackendGoGit, cfg.Backend)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Selection.OnlyAuthors)
	assert.Equal(t, "reverse", cfg.Selection.Order)
	assert.True(t, cfg.Selection.OnlyNoMerge)
	assert.Equal(t, "/tmp/gitminer-cache.db", cfg.Analysis.CachePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, FormatYAML, cfg.Output.Format)

	// defaults survive a partial section
	assert.Equal(t, 3, cfg.Log.MaxBackups)
	assert.True(t, cfg.Output.IncludeModifications)
	assert.True(t, cfg.Output.IncludeMethods)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GITMINER_BACKEND", "git")
	t.Setenv("GITMINER_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, BackendGit, cfg.Backend)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "repositories: [unclosed\n"))
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestSaveAndLoad(t *testing.T) {
	cfg := Default()
	cfg.Repositories = []string{"/src/project"}
	cfg.Selection.FromTag = "v1.0"
	cfg.Selection.OnlyCommits = []string{"abc", "def"}
	cfg.Output.Format = FormatJSONL

	path := filepath.Join(t.TempDir(), "nested", "gitminer.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Repositories, loaded.Repositories)
	assert.Equal(t, "v1.0", loaded.Selection.FromTag)
	assert.Equal(t, []string{"abc", "def"}, loaded.Selection.OnlyCommits)
	assert.Equal(t, FormatJSONL, loaded.Output.Format)
	assert.Equal(t, BackendGit, loaded.Backend)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDate("2024-03-05", false)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))

	got, err = ParseDate("2024-03-05", true)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 5, 23, 59, 59, 999999999, time.UTC)))

	got, err = ParseDate("2024-03-05T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)))

	_, err = ParseDate("05/03/2024", false)
	assert.Error(t, err)
}

func TestSelectionConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	sel, err := cfg.SelectionConfig(nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Since)
	require.NotNil(t, sel.To)
	assert.True(t, sel.Since.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sel.To.Equal(time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{".py"}, sel.OnlyModificationsWithFileTypes)
	assert.NoError(t, sel.Validate())
}

func TestSelectionConfig_ReversedOrderIsDeprecated(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	cfg := Default()
	cfg.Selection.ReversedOrder = true

	sel, err := cfg.SelectionConfig(logger)
	require.NoError(t, err)
	assert.Equal(t, "reverse", sel.Order)
	assert.Contains(t, buf.String(), "deprecated")
}

func TestSelectionConfig_BadDate(t *testing.T) {
	cfg := Default()
	cfg.Selection.Since = "yesterday"

	_, err := cfg.SelectionConfig(nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown backend", func(c *Config) { c.Backend = "svn" }, false},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, false},
		{"badly formatted url", func(c *Config) { c.Repositories = []string{"git@host:project.git"} }, false},
		{"clone_to is a file", func(c *Config) { c.CloneTo = file }, false},
		{"clone_to is a directory", func(c *Config) { c.CloneTo = t.TempDir() }, true},
		{"single with range", func(c *Config) {
			c.Selection.Single = "abc"
			c.Selection.Since = "2024-01-01"
		}, false},
		{"commit and tag range", func(c *Config) {
			c.Selection.FromCommit = "abc"
			c.Selection.ToTag = "v1"
		}, false},
		{"bad date", func(c *Config) { c.Selection.To = "soon" }, false},
		{"unknown order", func(c *Config) { c.Selection.Order = "shuffle" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate()
			assert.Equal(t, tt.valid, !result.HasErrors(), result.Error())
			if tt.valid {
				assert.NoError(t, result.Err())
			} else {
				assert.ErrorIs(t, result.Err(), apperrors.ErrConfiguration)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendGoGit
	cfg.Selection.Histogram = true
	cfg.Output.IncludeModifications = false
	cfg.Output.IncludeMethods = true

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	assert.Len(t, result.Warnings, 2)
}
