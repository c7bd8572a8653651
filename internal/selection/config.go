// Package selection turns a declarative commit selection into a revision walk
// plus a predicate for the filters a walk cannot express.
package selection

import (
	"slices"
	"strings"
	"time"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
)

// Config lists every selection option. Zero values mean "no constraint".
type Config struct {
	// Since and To bound the author date, both inclusive
	Since *time.Time `yaml:"since,omitempty"`
	To    *time.Time `yaml:"to,omitempty"`

	FromCommit string `yaml:"from_commit,omitempty"`
	ToCommit   string `yaml:"to_commit,omitempty"`
	FromTag    string `yaml:"from_tag,omitempty"`
	ToTag      string `yaml:"to_tag,omitempty"`
	Single     string `yaml:"single,omitempty"`

	IncludeRefs    bool   `yaml:"include_refs,omitempty"`
	IncludeRemotes bool   `yaml:"include_remotes,omitempty"`
	OnlyInBranch   string `yaml:"only_in_branch,omitempty"`

	OnlyModificationsWithFileTypes []string `yaml:"only_modifications_with_file_types,omitempty"`
	OnlyNoMerge                    bool     `yaml:"only_no_merge,omitempty"`
	OnlyAuthors                    []string `yaml:"only_authors,omitempty"`
	OnlyCommits                    []string `yaml:"only_commits,omitempty"`
	OnlyReleases                   bool     `yaml:"only_releases,omitempty"`
	Filepath                       string   `yaml:"filepath,omitempty"`

	// Order is "", reverse, date-order, author-date-order or topo-order
	Order           string `yaml:"order,omitempty"`
	Histogram       bool   `yaml:"histogram,omitempty"`
	SkipWhitespaces bool   `yaml:"skip_whitespaces,omitempty"`
}

// Validate rejects contradictory options before any walk starts
func (c Config) Validate() error {
	if c.Single != "" {
		var conflicting []string
		for name, set := range map[string]bool{
			"since":       c.Since != nil,
			"to":          c.To != nil,
			"from_commit": c.FromCommit != "",
			"to_commit":   c.ToCommit != "",
			"from_tag":    c.FromTag != "",
			"to_tag":      c.ToTag != "",
		} {
			if set {
				conflicting = append(conflicting, name)
			}
		}
		if len(conflicting) > 0 {
			slices.Sort(conflicting)
			return apperrors.ConfigErrorf("single cannot be combined with other range filters (%s)", strings.Join(conflicting, ", "))
		}
	}

	commitRange := c.FromCommit != "" || c.ToCommit != ""
	tagRange := c.FromTag != "" || c.ToTag != ""
	if commitRange && tagRange {
		return apperrors.ConfigError("commit range (from_commit/to_commit) and tag range (from_tag/to_tag) are mutually exclusive")
	}

	if _, err := repository.ParseOrder(c.Order); err != nil {
		return apperrors.ConfigError(err.Error())
	}
	return nil
}

// DiffOptions forwards the diff-algorithm hints
func (c Config) DiffOptions() repository.DiffOptions {
	return repository.DiffOptions{Histogram: c.Histogram, IgnoreWhitespace: c.SkipWhitespaces}
}
