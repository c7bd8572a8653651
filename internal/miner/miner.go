// Package miner drives commit mining over one or more repositories. It opens
// (or clones) each repository in turn, walks the selected revisions and yields
// the commits that survive the selection filters.
package miner

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/gitminer/internal/analyzer"
	"github.com/rohankatakam/gitminer/internal/commits"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
	"github.com/rohankatakam/gitminer/internal/selection"
)

// Options configures a Miner
type Options struct {
	// Repositories are local paths or remote URLs (git@... or https://...)
	Repositories []string
	Selection    selection.Config

	// CloneTo is an existing directory receiving remote clones. When empty,
	// clones go to a temporary directory removed after the walk.
	CloneTo string

	// Opener defaults to the git CLI backend
	Opener repository.Opener
	// Analyzer defaults to the built-in language registry
	Analyzer analyzer.Analyzer
	Logger   logrus.FieldLogger
}

// Miner mines the configured repositories in order
type Miner struct {
	opts   Options
	logger logrus.FieldLogger
}

// New validates opts and fills the defaults. Configuration problems are
// reported here, before any repository is touched.
func New(opts Options) (*Miner, error) {
	if len(opts.Repositories) == 0 {
		return nil, apperrors.ConfigError("at least one repository is required")
	}
	if err := opts.Selection.Validate(); err != nil {
		return nil, err
	}
	for _, repo := range opts.Repositories {
		if !repository.IsRemote(repo) {
			continue
		}
		if _, err := repository.RepoNameFromURL(repo); err != nil {
			return nil, err
		}
	}
	if opts.CloneTo != "" {
		if err := checkDir(opts.CloneTo); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	if opts.Opener == nil {
		opts.Opener = repository.NewCLIOpener(logger)
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analyzer.NewRegistry()
	}

	return &Miner{opts: opts, logger: logger}, nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return apperrors.ConfigErrorf("not a directory: %s", path)
	}
	return nil
}

// Commits starts a pull iteration over every selected commit
func (m *Miner) Commits(ctx context.Context) *Iterator {
	return &Iterator{ctx: ctx, m: m}
}

// Traverse is Commits as a range-over-func sequence. Breaking out of the loop
// releases the current repository. A failure is yielded once as the final
// element.
func (m *Miner) Traverse(ctx context.Context) iter.Seq2[*commits.Commit, error] {
	return func(yield func(*commits.Commit, error) bool) {
		it := m.Commits(ctx)
		defer it.Close()

		for it.Next() {
			if !yield(it.Commit(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Iterator walks repositories lazily. Use it as
//
//	it := m.Commits(ctx)
//	defer it.Close()
//	for it.Next() {
//		c := it.Commit()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	ctx context.Context
	m   *Miner

	next    int
	current *repoWalk
	commit  *commits.Commit
	err     error
	closed  bool
}

// Next advances to the next selected commit. It returns false when every
// repository is exhausted, on error, or after Close.
func (it *Iterator) Next() bool {
	it.commit = nil
	if it.err != nil || it.closed {
		return false
	}

	for {
		if err := it.ctx.Err(); err != nil {
			it.fail(err)
			return false
		}

		if it.current == nil {
			if it.next >= len(it.m.opts.Repositories) {
				return false
			}
			repo := it.m.opts.Repositories[it.next]
			it.next++

			w, err := it.m.openRepo(it.ctx, repo)
			if err != nil {
				it.err = err
				return false
			}
			it.current = w
		}

		c, err := it.current.next(it.ctx)
		if errors.Is(err, io.EOF) {
			if err := it.current.release(); err != nil {
				it.current = nil
				it.err = err
				return false
			}
			it.current = nil
			continue
		}
		if err != nil {
			it.fail(err)
			return false
		}

		it.commit = c
		return true
	}
}

func (it *Iterator) fail(err error) {
	it.err = err
	if it.current != nil {
		if releaseErr := it.current.release(); releaseErr != nil {
			it.m.logger.WithError(releaseErr).Warn("Failed to release repository")
		}
		it.current = nil
	}
}

// Commit is the commit Next advanced to
func (it *Iterator) Commit() *commits.Commit { return it.commit }

// Err is the error that stopped the iteration, if any
func (it *Iterator) Err() error { return it.err }

// Close releases the repository being walked. Safe to call more than once.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.commit = nil
	if it.current == nil {
		return nil
	}
	err := it.current.release()
	it.current = nil
	return err
}

// repoWalk is the state of one repository's walk
type repoWalk struct {
	repo    string
	backend repository.Backend
	revs    repository.RevisionIterator
	filter  *selection.Filter
	src     commits.Source
	logger  logrus.FieldLogger

	// tempDir is removed on release; empty for local or CloneTo repositories
	tempDir string

	started  time.Time
	yielded  int
	filtered int
	released bool
}

func (m *Miner) openRepo(ctx context.Context, repo string) (_ *repoWalk, err error) {
	logger := m.logger.WithField("repository", repo)
	w := &repoWalk{repo: repo, logger: logger, started: time.Now()}
	defer func() {
		if err != nil {
			if releaseErr := w.release(); releaseErr != nil {
				logger.WithError(releaseErr).Warn("Failed to release repository")
			}
		}
	}()

	if repository.IsRemote(repo) {
		w.backend, err = m.clone(ctx, repo, w, logger)
	} else {
		w.backend, err = m.opts.Opener.Open(ctx, repo)
	}
	if err != nil {
		return nil, err
	}

	mainBranch, branchErr := w.backend.CurrentBranch(ctx)
	if branchErr != nil {
		logger.WithError(branchErr).Debug("Could not determine the checked out branch")
		mainBranch = ""
	}

	filter, err := selection.NewFilter(m.opts.Selection, logger)
	if err != nil {
		return nil, err
	}
	req, err := filter.BuildArgs(ctx, w.backend)
	if err != nil {
		return nil, err
	}
	if err := filter.Prepare(ctx, w.backend); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":        w.backend.Path(),
		"main_branch": mainBranch,
	}).Info("Analyzing git repository")

	revs, err := w.backend.Walk(ctx, req)
	if err != nil {
		return nil, err
	}

	w.revs = revs
	w.filter = filter
	w.src = commits.Source{
		Backend:     w.backend,
		Analyzer:    m.opts.Analyzer,
		DiffOptions: m.opts.Selection.DiffOptions(),
		MainBranch:  mainBranch,
		Logger:      logger,
	}
	return w, nil
}

// clone fetches a remote repository into <CloneTo or temp>/<repo name>. A
// repository already present at the target is reused.
func (m *Miner) clone(ctx context.Context, url string, w *repoWalk, logger logrus.FieldLogger) (repository.Backend, error) {
	name, err := repository.RepoNameFromURL(url)
	if err != nil {
		return nil, err
	}

	folder := m.opts.CloneTo
	if folder != "" {
		if err := checkDir(folder); err != nil {
			return nil, err
		}
	} else {
		folder, err = os.MkdirTemp("", "gitminer-")
		if err != nil {
			return nil, apperrors.BackendError(err, "failed to create clone directory")
		}
		w.tempDir = folder
	}

	target := filepath.Join(folder, name)
	fields := logrus.Fields{"target": target}
	if org, repoName, err := repository.ParseRepoURL(url); err == nil {
		fields["org"] = org
		fields["name"] = repoName
	}

	if isGitDir(target) {
		logger.WithFields(fields).Info("Reusing existing clone")
		return m.opts.Opener.Open(ctx, target)
	}

	logger.WithFields(fields).Info("Cloning repository")
	return m.opts.Opener.Clone(ctx, url, target)
}

func isGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// next returns the next commit that passes the filter, or io.EOF
func (w *repoWalk) next(ctx context.Context) (*commits.Commit, error) {
	for {
		rev, err := w.revs.Next()
		if err != nil {
			return nil, err
		}

		c := commits.New(rev, w.src)
		w.logger.WithFields(logrus.Fields{
			"commit": c.Hash,
			"date":   c.CommitterDate,
			"author": c.Author.Name,
		}).Debug("Visiting commit")

		filtered, err := w.filter.IsCommitFiltered(ctx, c)
		if err != nil {
			return nil, err
		}
		if filtered {
			w.filtered++
			continue
		}
		w.yielded++
		return c, nil
	}
}

// release closes the walk and the backend and removes a temporary clone.
// Lazy properties of this repository's commits are unusable afterwards.
func (w *repoWalk) release() error {
	if w.released {
		return nil
	}
	w.released = true

	var errs []error
	if w.revs != nil {
		errs = append(errs, w.revs.Close())
	}
	if w.backend != nil {
		errs = append(errs, w.backend.Close())
	}
	if w.tempDir != "" {
		if err := os.RemoveAll(w.tempDir); err != nil {
			errs = append(errs, apperrors.BackendErrorf(err, "failed to remove temporary clone %s", w.tempDir))
		}
	}

	w.logger.WithFields(logrus.Fields{
		"commits":  w.yielded,
		"filtered": w.filtered,
		"duration": time.Since(w.started).String(),
	}).Info("Repository analysis completed")

	return errors.Join(errs...)
}
