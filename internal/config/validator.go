package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/logging"
	"github.com/rohankatakam/gitminer/internal/repository"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err is nil when valid, otherwise a configuration error
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return apperrors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate checks every section. Repositories are not required here since the
// command line may supply them.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateRepositories(result)
	c.validateSelection(result)
	c.validateBackend(result)
	c.validateLog(result)
	c.validateOutput(result)

	return result
}

func (c *Config) validateRepositories(result *ValidationResult) {
	for _, repo := range c.Repositories {
		if strings.TrimSpace(repo) == "" {
			result.AddError("repositories: empty entry")
			continue
		}
		if repository.IsRemote(repo) {
			if _, err := repository.RepoNameFromURL(repo); err != nil {
				result.AddError("repositories: %v", err)
			}
		}
	}

	if c.CloneTo != "" {
		info, err := os.Stat(c.CloneTo)
		if err != nil || !info.IsDir() {
			result.AddError("clone_to: not a directory: %s", c.CloneTo)
		}
	}
}

func (c *Config) validateSelection(result *ValidationResult) {
	sel, err := c.SelectionConfig(nil)
	if err != nil {
		result.AddError("selection: %v", messageOf(err))
		return
	}
	if err := sel.Validate(); err != nil {
		result.AddError("selection: %v", messageOf(err))
	}
	if c.Selection.ReversedOrder && c.Selection.Order != "" && c.Selection.Order != string(repository.OrderReverse) {
		result.AddWarning("selection: reversed_order overrides order %q", c.Selection.Order)
	}
}

func (c *Config) validateBackend(result *ValidationResult) {
	switch c.Backend {
	case BackendGit, BackendGoGit:
	default:
		result.AddError("backend: must be %q or %q, got %q", BackendGit, BackendGoGit, c.Backend)
	}
	if c.Backend == BackendGoGit && (c.Selection.Histogram || c.Selection.SkipWhitespaces) {
		result.AddWarning("backend: go-git ignores histogram_diff and skip_whitespaces")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		result.AddError("log.level: %v", err)
	}
	if c.Log.MaxSize < 0 {
		result.AddError("log.max_size: must not be negative")
	}
	if c.Log.MaxBackups < 0 {
		result.AddError("log.max_backups: must not be negative")
	}
}

func (c *Config) validateOutput(result *ValidationResult) {
	switch c.Output.Format {
	case "", FormatJSONL, FormatYAML, FormatTable:
	default:
		result.AddError("output.format: must be %s, %s or %s, got %q", FormatJSONL, FormatYAML, FormatTable, c.Output.Format)
	}
	if c.Output.IncludeMethods && !c.Output.IncludeModifications {
		result.AddWarning("output.include_methods has no effect without include_modifications")
	}
}

func messageOf(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
