package selection

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitminer/internal/commits"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
)

// Resolver looks up revisions by name
type Resolver interface {
	Resolve(ctx context.Context, rev string) (*repository.Revision, error)
}

// Filter is a validated selection bound to one repository walk
type Filter struct {
	cfg    Config
	order  repository.Order
	logger logrus.FieldLogger

	authors   map[string]bool
	hashes    map[string]bool
	fileTypes []string

	// populated by Prepare
	filepathCommits map[string]bool
	taggedCommits   map[string]bool
}

// NewFilter validates cfg and indexes its sets
func NewFilter(cfg Config, logger logrus.FieldLogger) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	order, _ := repository.ParseOrder(cfg.Order)

	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	f := &Filter{cfg: cfg, order: order, logger: logger, fileTypes: cfg.OnlyModificationsWithFileTypes}
	if len(cfg.OnlyAuthors) > 0 {
		f.authors = toSet(cfg.OnlyAuthors)
	}
	if len(cfg.OnlyCommits) > 0 {
		f.hashes = toSet(cfg.OnlyCommits)
	}
	return f, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Config returns the validated configuration
func (f *Filter) Config() Config { return f.cfg }

// BuildArgs resolves the range options into a walk request. Range starts are
// inclusive: the walk excludes the parents of the from commit.
func (f *Filter) BuildArgs(ctx context.Context, r Resolver) (repository.WalkRequest, error) {
	req := repository.WalkRequest{
		Order:   f.order,
		AllRefs: f.cfg.IncludeRefs,
		Remotes: f.cfg.IncludeRemotes,
	}

	if f.cfg.Single != "" {
		rev, err := resolve(ctx, r, "single", f.cfg.Single)
		if err != nil {
			return req, err
		}
		req.Include = []string{rev.Hash}
		req.MaxCount = 1
		// the single commit only; ref expansion would add unrelated history
		req.AllRefs, req.Remotes = false, false
		return req, nil
	}

	from, fromOption := f.cfg.FromCommit, "from_commit"
	if f.cfg.FromTag != "" {
		from, fromOption = f.cfg.FromTag, "from_tag"
	}
	to, toOption := f.cfg.ToCommit, "to_commit"
	if f.cfg.ToTag != "" {
		to, toOption = f.cfg.ToTag, "to_tag"
	}

	switch {
	case to != "":
		rev, err := resolve(ctx, r, toOption, to)
		if err != nil {
			return req, err
		}
		req.Include = []string{rev.Hash}
	case f.cfg.OnlyInBranch != "":
		rev, err := resolve(ctx, r, "only_in_branch", f.cfg.OnlyInBranch)
		if err != nil {
			return req, err
		}
		req.Include = []string{rev.Hash}
	default:
		req.Include = []string{"HEAD"}
	}

	if from != "" {
		rev, err := resolve(ctx, r, fromOption, from)
		if err != nil {
			return req, err
		}
		req.Exclude = append(req.Exclude, rev.Parents...)
	}

	return req, nil
}

func resolve(ctx context.Context, r Resolver, option, rev string) (*repository.Revision, error) {
	resolved, err := r.Resolve(ctx, rev)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeConfig, apperrors.SeverityCritical,
			"the revision defined in '"+option+"' does not exist: "+rev)
	}
	return resolved, nil
}

// Backend is what Prepare needs from a repository
type Backend interface {
	CommitsTouching(ctx context.Context, path string) ([]string, error)
	Tags(ctx context.Context) (map[string]string, error)
	Walk(ctx context.Context, req repository.WalkRequest) (repository.RevisionIterator, error)
}

// Prepare precomputes the sets for the file-path and release filters
func (f *Filter) Prepare(ctx context.Context, b Backend) error {
	if f.cfg.Filepath != "" {
		hashes, err := b.CommitsTouching(ctx, f.cfg.Filepath)
		if err != nil {
			return err
		}
		f.filepathCommits = toSet(hashes)
		f.logger.WithFields(logrus.Fields{
			"filepath": f.cfg.Filepath,
			"commits":  len(hashes),
		}).Debug("Collected commits touching file")
	}

	if f.cfg.OnlyReleases {
		tagged, err := taggedCommits(ctx, b)
		if err != nil {
			return err
		}
		f.taggedCommits = tagged
		f.logger.WithField("commits", len(tagged)).Debug("Collected tag-reachable commits")
	}
	return nil
}

// taggedCommits is every commit reachable from some tag
func taggedCommits(ctx context.Context, b Backend) (map[string]bool, error) {
	tags, err := b.Tags(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	if len(tags) == 0 {
		return set, nil
	}

	targets := make(map[string]bool, len(tags))
	var include []string
	for _, hash := range tags {
		if !targets[hash] {
			targets[hash] = true
			include = append(include, hash)
		}
	}

	it, err := b.Walk(ctx, repository.WalkRequest{Include: include, Order: repository.OrderReverse})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		rev, err := it.Next()
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			return nil, err
		}
		set[rev.Hash] = true
	}
}

// IsCommitFiltered reports whether c must be dropped
func (f *Filter) IsCommitFiltered(ctx context.Context, c *commits.Commit) (bool, error) {
	reason, err := f.filterReason(ctx, c)
	if err != nil {
		return false, err
	}
	if reason == "" {
		return false, nil
	}
	f.logger.WithFields(logrus.Fields{
		"commit": c.Hash,
		"reason": reason,
	}).Debug("Commit filtered")
	return true, nil
}

func (f *Filter) filterReason(ctx context.Context, c *commits.Commit) (string, error) {
	if f.authors != nil && !f.authors[c.Author.Name] {
		return "author not selected", nil
	}
	if f.hashes != nil && !f.hashes[c.Hash] {
		return "hash not selected", nil
	}
	if f.cfg.OnlyNoMerge && c.Merge {
		return "merge commit", nil
	}
	if f.cfg.Since != nil && c.AuthorDate.Before(*f.cfg.Since) {
		return "authored before since", nil
	}
	if f.cfg.To != nil && c.AuthorDate.After(*f.cfg.To) {
		return "authored after to", nil
	}
	if f.filepathCommits != nil && !f.filepathCommits[c.Hash] {
		return "does not touch filepath", nil
	}
	if f.taggedCommits != nil && !f.taggedCommits[c.Hash] {
		return "not reachable from a tag", nil
	}

	if len(f.fileTypes) > 0 {
		mods, err := c.Modifications(ctx)
		if err != nil {
			return "", err
		}
		if !f.hasFileType(mods) {
			return "no modification with selected file type", nil
		}
	}
	return "", nil
}

func (f *Filter) hasFileType(mods []*commits.Modification) bool {
	for _, m := range mods {
		name := m.Filename()
		for _, suffix := range f.fileTypes {
			if strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}
	return false
}
