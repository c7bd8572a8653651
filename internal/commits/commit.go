// Package commits is the data model of a mined revision: Commit,
// Modification and Method, together with changed-method attribution and the
// Delta Maintainability Model.
package commits

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitminer/internal/analyzer"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
)

// Developer is an author or committer identity
type Developer struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// Source carries what a Commit needs to compute its lazy properties
type Source struct {
	Backend     repository.Backend
	Analyzer    analyzer.Analyzer
	DiffOptions repository.DiffOptions
	// MainBranch is the branch checked out when the repository was opened
	MainBranch string
	Logger     logrus.FieldLogger
}

// Commit wraps one revision. Lazy properties query the backend and stay
// valid until the walk moves past this commit's repository.
type Commit struct {
	Hash          string
	Author        Developer
	Committer     Developer
	AuthorDate    time.Time
	CommitterDate time.Time
	// AuthorTimezone and CommitterTimezone are offsets in seconds west of UTC
	AuthorTimezone    int
	CommitterTimezone int
	Msg               string
	Parents           []string
	Merge             bool
	ProjectName       string
	ProjectPath       string

	src Source

	modifications []*Modification
	branches      []string
}

// New wraps a backend revision
func New(rev *repository.Revision, src Source) *Commit {
	src.Logger = loggerOrDiscard(src.Logger)
	parents := rev.Parents
	if parents == nil {
		parents = []string{}
	}

	c := &Commit{
		Hash:              rev.Hash,
		Author:            Developer{Name: rev.Author.Name, Email: rev.Author.Email},
		Committer:         Developer{Name: rev.Committer.Name, Email: rev.Committer.Email},
		AuthorDate:        rev.Author.When,
		CommitterDate:     rev.Committer.When,
		AuthorTimezone:    secondsWest(rev.Author.When),
		CommitterTimezone: secondsWest(rev.Committer.When),
		Msg:               strings.TrimSpace(rev.Message),
		Parents:           parents,
		Merge:             len(parents) > 1,
		src:               src,
	}
	if src.Backend != nil {
		c.ProjectPath = src.Backend.Path()
		c.ProjectName = filepath.Base(c.ProjectPath)
	}
	return c
}

func secondsWest(t time.Time) int {
	_, offset := t.Zone()
	return -offset
}

// Modifications lists changed files against the first parent (the empty tree
// for a root commit). Merge commits have none.
func (c *Commit) Modifications(ctx context.Context) ([]*Modification, error) {
	if c.modifications != nil {
		return c.modifications, nil
	}
	if c.Merge {
		c.modifications = []*Modification{}
		return c.modifications, nil
	}
	if c.src.Backend == nil {
		return nil, apperrors.InternalErrorf("commit %s has no repository backend", c.Hash)
	}

	parent := ""
	if len(c.Parents) > 0 {
		parent = c.Parents[0]
	}
	diffs, err := c.src.Backend.Diff(ctx, parent, c.Hash, c.src.DiffOptions)
	if err != nil {
		return nil, err
	}

	mods := make([]*Modification, 0, len(diffs))
	for _, fd := range diffs {
		before, err := c.source(ctx, fd, fd.OldBlob)
		if err != nil {
			return nil, err
		}
		after, err := c.source(ctx, fd, fd.NewBlob)
		if err != nil {
			return nil, err
		}
		mods = append(mods, NewModification(fd.OldPath, fd.NewPath, kindOf(fd), fd.Patch,
			before, after, c.src.Analyzer, c.src.Logger))
	}

	c.modifications = mods
	return mods, nil
}

func kindOf(fd repository.FileDiff) ModificationKind {
	switch {
	case fd.NewFile:
		return Added
	case fd.Deleted:
		return Deleted
	case fd.Renamed:
		return Renamed
	case fd.Copied:
		return Copied
	case fd.OldBlob != "" && fd.NewBlob != "" && fd.OldBlob != fd.NewBlob:
		return Modified
	default:
		return Unknown
	}
}

// source reads one side of a file change; binary content decodes to nil
func (c *Commit) source(ctx context.Context, fd repository.FileDiff, blob string) (*string, error) {
	if blob == "" || fd.Binary {
		return nil, nil
	}
	data, err := c.src.Backend.ReadBlob(ctx, blob)
	if err != nil {
		return nil, err
	}
	text, err := decode(data)
	if err != nil {
		c.src.Logger.WithError(err).WithFields(logrus.Fields{
			"commit": c.Hash,
			"blob":   blob,
		}).Debug("Skipping source code")
		return nil, nil
	}
	return &text, nil
}

// decode treats content with NUL bytes as binary and drops invalid UTF-8
func decode(data []byte) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", apperrors.DecodeError("content is binary")
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// Branches lists local branches containing this commit
func (c *Commit) Branches(ctx context.Context) ([]string, error) {
	if c.branches != nil {
		return c.branches, nil
	}
	if c.src.Backend == nil {
		return nil, apperrors.InternalErrorf("commit %s has no repository backend", c.Hash)
	}
	branches, err := c.src.Backend.BranchesContaining(ctx, c.Hash)
	if err != nil {
		return nil, err
	}
	if branches == nil {
		branches = []string{}
	}
	c.branches = branches
	return branches, nil
}

// InMainBranch reports whether the branch checked out at open time contains
// this commit
func (c *Commit) InMainBranch(ctx context.Context) (bool, error) {
	branches, err := c.Branches(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(branches, c.src.MainBranch), nil
}

// Insertions totals added lines across modifications
func (c *Commit) Insertions(ctx context.Context) (int, error) {
	mods, err := c.Modifications(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range mods {
		total += m.AddedLines()
	}
	return total, nil
}

// Deletions totals removed lines across modifications
func (c *Commit) Deletions(ctx context.Context) (int, error) {
	mods, err := c.Modifications(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range mods {
		total += m.RemovedLines()
	}
	return total, nil
}

// Lines is insertions plus deletions
func (c *Commit) Lines(ctx context.Context) (int, error) {
	ins, err := c.Insertions(ctx)
	if err != nil {
		return 0, err
	}
	del, err := c.Deletions(ctx)
	if err != nil {
		return 0, err
	}
	return ins + del, nil
}

// Files is the number of modified files
func (c *Commit) Files(ctx context.Context) (int, error) {
	mods, err := c.Modifications(ctx)
	if err != nil {
		return 0, err
	}
	return len(mods), nil
}

// DMMUnitSize scores the change in method size risk; nil when no modified
// file is in a supported language
func (c *Commit) DMMUnitSize(ctx context.Context) (*float64, error) {
	return c.deltaMaintainability(ctx, UnitSize)
}

// DMMUnitComplexity scores the change in method complexity risk
func (c *Commit) DMMUnitComplexity(ctx context.Context) (*float64, error) {
	return c.deltaMaintainability(ctx, UnitComplexity)
}

// DMMUnitInterfacing scores the change in method parameter-count risk
func (c *Commit) DMMUnitInterfacing(ctx context.Context) (*float64, error) {
	return c.deltaMaintainability(ctx, UnitInterfacing)
}

// DeltaRiskProfile sums the profiles of supported modifications; ok is false
// when there are none
func (c *Commit) DeltaRiskProfile(ctx context.Context, prop Property) (deltaLow, deltaHigh int, ok bool, err error) {
	mods, err := c.Modifications(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	for _, m := range mods {
		if !m.LanguageSupported() {
			continue
		}
		low, high := m.DeltaRiskProfile(prop)
		deltaLow += low
		deltaHigh += high
		ok = true
	}
	return deltaLow, deltaHigh, ok, nil
}

func (c *Commit) deltaMaintainability(ctx context.Context, prop Property) (*float64, error) {
	low, high, ok, err := c.DeltaRiskProfile(ctx, prop)
	if err != nil || !ok {
		return nil, err
	}
	score := DeltaMaintainability(low, high)
	return &score, nil
}

// Equal compares identity and metadata; lazy properties are not compared
func (c *Commit) Equal(other *Commit) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Hash == other.Hash &&
		c.Author == other.Author &&
		c.Committer == other.Committer &&
		c.AuthorDate.Equal(other.AuthorDate) &&
		c.CommitterDate.Equal(other.CommitterDate) &&
		c.AuthorTimezone == other.AuthorTimezone &&
		c.CommitterTimezone == other.CommitterTimezone &&
		c.Msg == other.Msg &&
		slices.Equal(c.Parents, other.Parents) &&
		c.Merge == other.Merge &&
		c.ProjectName == other.ProjectName &&
		c.ProjectPath == other.ProjectPath
}

func loggerOrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
