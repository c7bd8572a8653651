// Package output renders mined commits as JSON lines, YAML documents or a
// terminal table.
package output

import (
	"context"
	"time"

	"github.com/rohankatakam/gitminer/internal/commits"
)

// ViewOptions selects the optional parts of a CommitView
type ViewOptions struct {
	Modifications bool
	Methods       bool
}

// CommitView is the serialized form of a commit. Lazy properties are resolved
// while the commit's repository is still open.
type CommitView struct {
	Hash              string            `json:"hash" yaml:"hash"`
	Msg               string            `json:"msg" yaml:"msg"`
	Author            commits.Developer `json:"author" yaml:"author"`
	Committer         commits.Developer `json:"committer" yaml:"committer"`
	AuthorDate        time.Time         `json:"author_date" yaml:"author_date"`
	AuthorTimezone    int               `json:"author_timezone" yaml:"author_timezone"`
	CommitterDate     time.Time         `json:"committer_date" yaml:"committer_date"`
	CommitterTimezone int               `json:"committer_timezone" yaml:"committer_timezone"`
	Parents           []string          `json:"parents" yaml:"parents"`
	Merge             bool              `json:"merge" yaml:"merge"`
	ProjectName       string            `json:"project_name" yaml:"project_name"`
	ProjectPath       string            `json:"project_path" yaml:"project_path"`
	InMainBranch      bool              `json:"in_main_branch" yaml:"in_main_branch"`
	Branches          []string          `json:"branches" yaml:"branches"`

	Insertions int `json:"insertions" yaml:"insertions"`
	Deletions  int `json:"deletions" yaml:"deletions"`
	Lines      int `json:"lines" yaml:"lines"`
	Files      int `json:"files" yaml:"files"`

	// nil when no modification is in a supported language
	DMMUnitSize        *float64 `json:"dmm_unit_size" yaml:"dmm_unit_size"`
	DMMUnitComplexity  *float64 `json:"dmm_unit_complexity" yaml:"dmm_unit_complexity"`
	DMMUnitInterfacing *float64 `json:"dmm_unit_interfacing" yaml:"dmm_unit_interfacing"`

	Modifications []ModificationView `json:"modifications,omitempty" yaml:"modifications,omitempty"`
}

// ModificationView is the serialized form of a modified file
type ModificationView struct {
	OldPath      string                   `json:"old_path,omitempty" yaml:"old_path,omitempty"`
	NewPath      string                   `json:"new_path,omitempty" yaml:"new_path,omitempty"`
	Filename     string                   `json:"filename" yaml:"filename"`
	ChangeType   commits.ModificationKind `json:"change_type" yaml:"change_type"`
	AddedLines   int                      `json:"added_lines" yaml:"added_lines"`
	RemovedLines int                      `json:"removed_lines" yaml:"removed_lines"`
	NLOC         *int                     `json:"nloc,omitempty" yaml:"nloc,omitempty"`
	Complexity   *int                     `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	TokenCount   *int                     `json:"token_count,omitempty" yaml:"token_count,omitempty"`

	ChangedMethods []commits.Method `json:"changed_methods,omitempty" yaml:"changed_methods,omitempty"`
}

// NewCommitView resolves every property of c
func NewCommitView(ctx context.Context, c *commits.Commit, opts ViewOptions) (*CommitView, error) {
	v := &CommitView{
		Hash:              c.Hash,
		Msg:               c.Msg,
		Author:            c.Author,
		Committer:         c.Committer,
		AuthorDate:        c.AuthorDate,
		AuthorTimezone:    c.AuthorTimezone,
		CommitterDate:     c.CommitterDate,
		CommitterTimezone: c.CommitterTimezone,
		Parents:           c.Parents,
		Merge:             c.Merge,
		ProjectName:       c.ProjectName,
		ProjectPath:       c.ProjectPath,
	}

	var err error
	if v.Branches, err = c.Branches(ctx); err != nil {
		return nil, err
	}
	if v.InMainBranch, err = c.InMainBranch(ctx); err != nil {
		return nil, err
	}
	if v.Insertions, err = c.Insertions(ctx); err != nil {
		return nil, err
	}
	if v.Deletions, err = c.Deletions(ctx); err != nil {
		return nil, err
	}
	if v.Lines, err = c.Lines(ctx); err != nil {
		return nil, err
	}
	if v.Files, err = c.Files(ctx); err != nil {
		return nil, err
	}
	if v.DMMUnitSize, err = c.DMMUnitSize(ctx); err != nil {
		return nil, err
	}
	if v.DMMUnitComplexity, err = c.DMMUnitComplexity(ctx); err != nil {
		return nil, err
	}
	if v.DMMUnitInterfacing, err = c.DMMUnitInterfacing(ctx); err != nil {
		return nil, err
	}

	if !opts.Modifications {
		return v, nil
	}
	mods, err := c.Modifications(ctx)
	if err != nil {
		return nil, err
	}
	v.Modifications = make([]ModificationView, 0, len(mods))
	for _, m := range mods {
		v.Modifications = append(v.Modifications, newModificationView(m, opts))
	}
	return v, nil
}

func newModificationView(m *commits.Modification, opts ViewOptions) ModificationView {
	v := ModificationView{
		OldPath:      m.OldPath,
		NewPath:      m.NewPath,
		Filename:     m.Filename(),
		ChangeType:   m.Kind,
		AddedLines:   m.AddedLines(),
		RemovedLines: m.RemovedLines(),
		NLOC:         optional(m.NLOC()),
		Complexity:   optional(m.Complexity()),
		TokenCount:   optional(m.TokenCount()),
	}
	if opts.Methods {
		v.ChangedMethods = m.ChangedMethods()
	}
	return v
}

func optional(value int, ok bool) *int {
	if !ok {
		return nil
	}
	return &value
}
