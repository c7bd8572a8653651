package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
	"github.com/rohankatakam/gitminer/internal/selection"
)

// Backends
const (
	BackendGit   = "git"
	BackendGoGit = "go-git"
)

// Output formats
const (
	FormatJSONL = "jsonl"
	FormatYAML  = "yaml"
	FormatTable = "table"
)

// Config holds all configuration settings
type Config struct {
	// Repositories are local paths or remote URLs mined in order
	Repositories []string `yaml:"repositories" mapstructure:"repositories"`

	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`

	// CloneTo receives remote clones; empty means a temporary directory
	CloneTo string `yaml:"clone_to" mapstructure:"clone_to"`

	// Backend is "git" (the git binary) or "go-git" (in-process)
	Backend string `yaml:"backend" mapstructure:"backend"`

	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
}

// SelectionConfig is the file form of selection.Config. Dates are RFC3339 or
// YYYY-MM-DD.
type SelectionConfig struct {
	Since string `yaml:"since" mapstructure:"since"`
	To    string `yaml:"to" mapstructure:"to"`

	FromCommit string `yaml:"from_commit" mapstructure:"from_commit"`
	ToCommit   string `yaml:"to_commit" mapstructure:"to_commit"`
	FromTag    string `yaml:"from_tag" mapstructure:"from_tag"`
	ToTag      string `yaml:"to_tag" mapstructure:"to_tag"`
	Single     string `yaml:"single" mapstructure:"single"`

	IncludeRefs    bool   `yaml:"include_refs" mapstructure:"include_refs"`
	IncludeRemotes bool   `yaml:"include_remotes" mapstructure:"include_remotes"`
	OnlyInBranch   string `yaml:"only_in_branch" mapstructure:"only_in_branch"`

	OnlyModificationsWithFileTypes []string `yaml:"only_modifications_with_file_types" mapstructure:"only_modifications_with_file_types"`
	OnlyNoMerge                    bool     `yaml:"only_no_merge" mapstructure:"only_no_merge"`
	OnlyAuthors                    []string `yaml:"only_authors" mapstructure:"only_authors"`
	OnlyCommits                    []string `yaml:"only_commits" mapstructure:"only_commits"`
	OnlyReleases                   bool     `yaml:"only_releases" mapstructure:"only_releases"`
	Filepath                       string   `yaml:"filepath" mapstructure:"filepath"`

	Order           string `yaml:"order" mapstructure:"order"`
	Histogram       bool   `yaml:"histogram_diff" mapstructure:"histogram_diff"`
	SkipWhitespaces bool   `yaml:"skip_whitespaces" mapstructure:"skip_whitespaces"`

	// ReversedOrder is deprecated in favour of order: reverse
	ReversedOrder bool `yaml:"reversed_order,omitempty" mapstructure:"reversed_order"`
}

type AnalysisConfig struct {
	// CachePath enables the bbolt analysis cache when set
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	JSON       bool   `yaml:"json" mapstructure:"json"`
	MaxSize    int64  `yaml:"max_size" mapstructure:"max_size"` // In bytes
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

type OutputConfig struct {
	// Format is jsonl, yaml or table; empty picks table on a terminal
	Format               string `yaml:"format" mapstructure:"format"`
	IncludeModifications bool   `yaml:"include_modifications" mapstructure:"include_modifications"`
	IncludeMethods       bool   `yaml:"include_methods" mapstructure:"include_methods"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Backend: BackendGit,
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10 * 1024 * 1024, // 10MB
			MaxBackups: 3,
		},
		Output: OutputConfig{
			IncludeModifications: true,
		},
	}
}

// Load loads configuration from file, .env files and GITMINER_* variables
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("clone_to", cfg.CloneTo)
	v.SetDefault("analysis.cache_path", cfg.Analysis.CachePath)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.json", cfg.Log.JSON)
	v.SetDefault("log.max_size", cfg.Log.MaxSize)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.include_modifications", cfg.Output.IncludeModifications)
	v.SetDefault("output.include_methods", cfg.Output.IncludeMethods)

	// GITMINER_LOG_LEVEL overrides log.level
	v.SetEnvPrefix("GITMINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("gitminer")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".gitminer"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.SeverityCritical, "failed to read config")
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.SeverityCritical, "failed to unmarshal config")
	}

	cfg.CloneTo = expandPath(cfg.CloneTo)
	cfg.Analysis.CachePath = expandPath(cfg.Analysis.CachePath)
	cfg.Log.File = expandPath(cfg.Log.File)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gitminer", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("repositories", c.Repositories)
	v.Set("selection", c.Selection)
	v.Set("clone_to", c.CloneTo)
	v.Set("backend", c.Backend)
	v.Set("analysis", c.Analysis)
	v.Set("log", c.Log)
	v.Set("output", c.Output)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SelectionConfig converts the file form into a selection.Config. The
// deprecated reversed_order flag maps to order: reverse with a notice.
func (c *Config) SelectionConfig(logger logrus.FieldLogger) (selection.Config, error) {
	s := c.Selection
	out := selection.Config{
		FromCommit:                     s.FromCommit,
		ToCommit:                       s.ToCommit,
		FromTag:                        s.FromTag,
		ToTag:                          s.ToTag,
		Single:                         s.Single,
		IncludeRefs:                    s.IncludeRefs,
		IncludeRemotes:                 s.IncludeRemotes,
		OnlyInBranch:                   s.OnlyInBranch,
		OnlyModificationsWithFileTypes: s.OnlyModificationsWithFileTypes,
		OnlyNoMerge:                    s.OnlyNoMerge,
		OnlyAuthors:                    s.OnlyAuthors,
		OnlyCommits:                    s.OnlyCommits,
		OnlyReleases:                   s.OnlyReleases,
		Filepath:                       s.Filepath,
		Order:                          s.Order,
		Histogram:                      s.Histogram,
		SkipWhitespaces:                s.SkipWhitespaces,
	}

	if s.ReversedOrder {
		if logger != nil {
			logger.Info("'reversed_order' is deprecated and will be removed in the next release. Use 'order: reverse' instead.")
		}
		out.Order = string(repository.OrderReverse)
	}

	since, err := ParseDate(s.Since, false)
	if err != nil {
		return out, apperrors.ConfigErrorf("invalid since: %v", err)
	}
	to, err := ParseDate(s.To, true)
	if err != nil {
		return out, apperrors.ConfigErrorf("invalid to: %v", err)
	}
	out.Since, out.To = since, to

	return out, nil
}

// ParseDate accepts RFC3339 or YYYY-MM-DD (UTC). A bare date used as an upper
// bound covers the whole day. Empty input yields nil.
func ParseDate(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%q is neither RFC3339 nor YYYY-MM-DD", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
