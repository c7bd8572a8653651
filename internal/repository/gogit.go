package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

const (
	binarySniffLen = 8000
	noNewlineNote  = "\\ No newline at end of file\n"
)

// GoGitOpener opens repositories with go-git; no git binary is needed
type GoGitOpener struct {
	Logger logrus.FieldLogger
}

// NewGoGitOpener returns a go-git opener
func NewGoGitOpener(logger logrus.FieldLogger) *GoGitOpener {
	return &GoGitOpener{Logger: logger}
}

func (o *GoGitOpener) Open(ctx context.Context, path string) (Backend, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "%s is not a git repository", path)
	}
	return &GoGitBackend{repo: repo, path: path, logger: loggerOrDiscard(o.Logger)}, nil
}

func (o *GoGitOpener) Clone(ctx context.Context, url, dir string) (Backend, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "clone %s failed", url)
	}
	return &GoGitBackend{repo: repo, path: dir, logger: loggerOrDiscard(o.Logger)}, nil
}

// GoGitBackend reads the object database in-process. Walks are materialized
// before the first revision is returned; patches are produced with difflib.
type GoGitBackend struct {
	repo   *git.Repository
	path   string
	logger logrus.FieldLogger

	hintOnce sync.Once
}

var _ Backend = (*GoGitBackend)(nil)

func (b *GoGitBackend) Path() string { return b.path }

// Close drops the repository handle. Later calls fail with a backend error.
func (b *GoGitBackend) Close() error {
	b.repo = nil
	return nil
}

func (b *GoGitBackend) released() error {
	if b.repo == nil {
		return apperrors.BackendErrorf(nil, "repository %s already released", b.path)
	}
	return nil
}

func (b *GoGitBackend) resolveHash(rev string) (plumbing.Hash, error) {
	h, err := b.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, apperrors.BackendErrorf(err, "revision %s not found", rev)
	}
	peeled, ok := b.peel(*h)
	if !ok {
		return plumbing.ZeroHash, apperrors.BackendErrorf(nil, "revision %s is not a commit", rev)
	}
	return peeled, nil
}

func (b *GoGitBackend) Resolve(ctx context.Context, rev string) (*Revision, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	h, err := b.resolveHash(rev)
	if err != nil {
		return nil, err
	}
	c, err := b.repo.CommitObject(h)
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "revision %s is not a commit", rev)
	}
	return toRevision(c), nil
}

func toRevision(c *object.Commit) *Revision {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &Revision{
		Hash:      c.Hash.String(),
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Message:   c.Message,
		Parents:   parents,
	}
}

// Walk collects the reachable set, orders it newest first by committer (or
// author) time, keeps children ahead of parents for the date and topo orders,
// applies MaxCount, and flips the result for the default order
func (b *GoGitBackend) Walk(ctx context.Context, req WalkRequest) (RevisionIterator, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	starts, err := b.walkStarts(req)
	if err != nil {
		return nil, err
	}
	excluded, err := b.ancestors(ctx, req.Exclude)
	if err != nil {
		return nil, err
	}

	seen := make(map[plumbing.Hash]bool)
	var commits []*object.Commit
	for _, start := range starts {
		iter, err := b.repo.Log(&git.LogOptions{From: start, Order: git.LogOrderCommitterTime})
		if err != nil {
			return nil, apperrors.BackendErrorf(err, "walk from %s", start)
		}
		err = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if seen[c.Hash] || excluded[c.Hash] {
				return nil
			}
			seen[c.Hash] = true
			commits = append(commits, c)
			return nil
		})
		iter.Close()
		if err != nil {
			return nil, apperrors.BackendError(err, "walk history")
		}
	}

	when := func(c *object.Commit) int64 { return c.Committer.When.UnixNano() }
	if req.Order == OrderAuthorDate {
		when = func(c *object.Commit) int64 { return c.Author.When.UnixNano() }
	}
	sort.SliceStable(commits, func(i, j int) bool { return when(commits[i]) > when(commits[j]) })
	switch req.Order {
	case OrderTopo:
		commits = topoSort(commits, false)
	case OrderDate, OrderAuthorDate:
		commits = topoSort(commits, true)
	}

	if req.MaxCount > 0 && len(commits) > req.MaxCount {
		commits = commits[:req.MaxCount]
	}
	if req.Order == OrderDefault {
		for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
			commits[i], commits[j] = commits[j], commits[i]
		}
	}

	return &sliceIterator{commits: commits}, nil
}

// topoSort reorders commits (sorted newest first) so that no parent precedes
// any of its children. byDate picks the most recent ready commit next, as
// git's --date-order does; otherwise the last commit made ready is shown next,
// which keeps each line of history together like --topo-order.
func topoSort(commits []*object.Commit, byDate bool) []*object.Commit {
	rank := make(map[plumbing.Hash]int, len(commits))
	for i, c := range commits {
		rank[c.Hash] = i
	}
	children := make(map[plumbing.Hash]int, len(commits))
	for _, c := range commits {
		for _, p := range c.ParentHashes {
			if _, ok := rank[p]; ok {
				children[p]++
			}
		}
	}

	// ready holds indexes into commits; the next commit is taken from the end
	var ready []int
	for i := len(commits) - 1; i >= 0; i-- {
		if children[commits[i].Hash] == 0 {
			ready = append(ready, i)
		}
	}

	sorted := make([]*object.Commit, 0, len(commits))
	for len(ready) > 0 {
		next := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		c := commits[next]
		sorted = append(sorted, c)

		for _, p := range c.ParentHashes {
			idx, ok := rank[p]
			if !ok {
				continue
			}
			children[p]--
			if children[p] > 0 {
				continue
			}
			if !byDate {
				ready = append(ready, idx)
				continue
			}
			// keep ready sorted by descending rank so the newest sits at the end
			at := sort.Search(len(ready), func(i int) bool { return ready[i] < idx })
			ready = append(ready, 0)
			copy(ready[at+1:], ready[at:])
			ready[at] = idx
		}
	}
	return sorted
}

func (b *GoGitBackend) walkStarts(req WalkRequest) ([]plumbing.Hash, error) {
	var starts []plumbing.Hash

	include := req.Include
	if len(include) == 0 {
		include = []string{"HEAD"}
	}
	for _, rev := range include {
		h, err := b.resolveHash(rev)
		if err != nil {
			return nil, err
		}
		starts = append(starts, h)
	}

	if req.AllRefs || req.Remotes {
		refs, err := b.repo.References()
		if err != nil {
			return nil, apperrors.BackendError(err, "list references")
		}
		err = refs.ForEach(func(ref *plumbing.Reference) error {
			if ref.Type() != plumbing.HashReference {
				return nil
			}
			if !req.AllRefs && !ref.Name().IsRemote() {
				return nil
			}
			if h, ok := b.peel(ref.Hash()); ok {
				starts = append(starts, h)
			}
			return nil
		})
		if err != nil {
			return nil, apperrors.BackendError(err, "list references")
		}
	}
	return starts, nil
}

// peel follows annotated tags to the commit they name
func (b *GoGitBackend) peel(h plumbing.Hash) (plumbing.Hash, bool) {
	if tag, err := b.repo.TagObject(h); err == nil {
		c, err := tag.Commit()
		if err != nil {
			return plumbing.ZeroHash, false
		}
		return c.Hash, true
	}
	if _, err := b.repo.CommitObject(h); err != nil {
		return plumbing.ZeroHash, false
	}
	return h, true
}

func (b *GoGitBackend) ancestors(ctx context.Context, revs []string) (map[plumbing.Hash]bool, error) {
	set := make(map[plumbing.Hash]bool)
	for _, rev := range revs {
		h, err := b.resolveHash(rev)
		if err != nil {
			return nil, err
		}
		iter, err := b.repo.Log(&git.LogOptions{From: h})
		if err != nil {
			return nil, apperrors.BackendErrorf(err, "walk from %s", rev)
		}
		err = iter.ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if set[c.Hash] {
				return nil
			}
			set[c.Hash] = true
			return nil
		})
		iter.Close()
		if err != nil {
			return nil, apperrors.BackendError(err, "walk excluded history")
		}
	}
	return set, nil
}

type sliceIterator struct {
	commits []*object.Commit
	pos     int
}

func (it *sliceIterator) Next() (*Revision, error) {
	if it.pos >= len(it.commits) {
		return nil, io.EOF
	}
	c := it.commits[it.pos]
	it.pos++
	return toRevision(c), nil
}

func (it *sliceIterator) Close() error {
	it.commits = nil
	return nil
}

// Diff compares trees with rename detection. Diff-algorithm hints have no
// go-git equivalent and are ignored.
func (b *GoGitBackend) Diff(ctx context.Context, parent, hash string, opts DiffOptions) ([]FileDiff, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	if opts.Histogram || opts.IgnoreWhitespace {
		b.hintOnce.Do(func() {
			b.logger.WithFields(logrus.Fields{
				"histogram":         opts.Histogram,
				"ignore_whitespace": opts.IgnoreWhitespace,
			}).Debug("Diff hints are not supported by the go-git backend")
		})
	}

	to, err := b.tree(hash)
	if err != nil {
		return nil, err
	}
	var from *object.Tree
	if parent != "" {
		if from, err = b.tree(parent); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "diff %s", hash)
	}

	diffs := make([]FileDiff, 0, len(changes))
	for _, change := range changes {
		fd, err := b.fileDiff(change)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, fd)
	}
	return diffs, nil
}

func (b *GoGitBackend) tree(rev string) (*object.Tree, error) {
	c, err := b.repo.CommitObject(plumbing.NewHash(rev))
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "commit %s not found", rev)
	}
	t, err := c.Tree()
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "tree of %s", rev)
	}
	return t, nil
}

func (b *GoGitBackend) fileDiff(change *object.Change) (FileDiff, error) {
	action, err := change.Action()
	if err != nil {
		return FileDiff{}, apperrors.BackendError(err, "classify change")
	}

	var fd FileDiff
	switch action {
	case merkletrie.Insert:
		fd.NewFile = true
		fd.NewPath = change.To.Name
		fd.NewBlob = blobID(change.To)
	case merkletrie.Delete:
		fd.Deleted = true
		fd.OldPath = change.From.Name
		fd.OldBlob = blobID(change.From)
	default:
		fd.OldPath = change.From.Name
		fd.NewPath = change.To.Name
		fd.OldBlob = blobID(change.From)
		fd.NewBlob = blobID(change.To)
		fd.Renamed = fd.OldPath != fd.NewPath
	}

	oldContent, err := b.content(fd.OldBlob)
	if err != nil {
		return FileDiff{}, err
	}
	newContent, err := b.content(fd.NewBlob)
	if err != nil {
		return FileDiff{}, err
	}

	if isBinary(oldContent) || isBinary(newContent) {
		fd.Binary = true
		return fd, nil
	}
	fd.Patch, err = unifiedPatch(string(oldContent), string(newContent))
	if err != nil {
		return FileDiff{}, apperrors.BackendErrorf(err, "diff %s", fd.NewPath)
	}
	return fd, nil
}

// blobID is empty for gitlinks, which have no blob in this repository
func blobID(entry object.ChangeEntry) string {
	if entry.TreeEntry.Mode == filemode.Submodule {
		return ""
	}
	return entry.TreeEntry.Hash.String()
}

func (b *GoGitBackend) content(hash string) ([]byte, error) {
	if hash == "" {
		return nil, nil
	}
	return b.ReadBlob(context.Background(), hash)
}

func isBinary(content []byte) bool {
	if len(content) > binarySniffLen {
		content = content[:binarySniffLen]
	}
	return bytes.IndexByte(content, 0) >= 0
}

// unifiedPatch renders git-style hunks (3 lines of context) without file headers
func unifiedPatch(before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        patchLines(before),
		B:        patchLines(after),
		FromFile: "a",
		ToFile:   "b",
		Context:  3,
	})
	if err != nil {
		return "", err
	}
	if i := strings.Index(text, "@@"); i >= 0 {
		text = text[i:]
	} else {
		return "", nil
	}
	return strings.TrimSuffix(text, "\n"), nil
}

// patchLines splits content into newline-terminated lines; a final line
// without a newline carries git's marker so it differs from a terminated one
func patchLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	lines[len(lines)-1] += "\n" + noNewlineNote
	return lines
}

func (b *GoGitBackend) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	blob, err := b.repo.BlobObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "blob %s not found", hash)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "read blob %s", hash)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "read blob %s", hash)
	}
	return data, nil
}

func (b *GoGitBackend) BranchesContaining(ctx context.Context, hash string) ([]string, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	target, err := b.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "commit %s not found", hash)
	}

	refs, err := b.repo.Branches()
	if err != nil {
		return nil, apperrors.BackendError(err, "list branches")
	}

	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		head, err := b.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		if head.Hash == target.Hash {
			names = append(names, ref.Name().Short())
			return nil
		}
		ok, err := target.IsAncestor(head)
		if err != nil {
			return err
		}
		if ok {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.BackendError(err, "check branch ancestry")
	}

	sort.Strings(names)
	return names, nil
}

func (b *GoGitBackend) Tags(ctx context.Context) (map[string]string, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	refs, err := b.repo.Tags()
	if err != nil {
		return nil, apperrors.BackendError(err, "list tags")
	}

	tags := make(map[string]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if h, ok := b.peel(ref.Hash()); ok {
			tags[ref.Name().Short()] = h.String()
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.BackendError(err, "list tags")
	}
	return tags, nil
}

// CommitsTouching does not follow renames
func (b *GoGitBackend) CommitsTouching(ctx context.Context, path string) ([]string, error) {
	if err := b.released(); err != nil {
		return nil, err
	}
	head, err := b.repo.Head()
	if err != nil {
		return nil, apperrors.BackendError(err, "resolve HEAD")
	}

	iter, err := b.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &path})
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "log %s", path)
	}
	defer iter.Close()

	var hashes []string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hashes = append(hashes, c.Hash.String())
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, apperrors.BackendErrorf(err, "log %s", path)
	}
	return hashes, nil
}

func (b *GoGitBackend) CurrentBranch(ctx context.Context) (string, error) {
	if err := b.released(); err != nil {
		return "", err
	}
	head, err := b.repo.Head()
	if err != nil {
		return "", apperrors.BackendError(err, "resolve HEAD")
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "HEAD", nil
}
