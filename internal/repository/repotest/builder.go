// Package repotest builds small git repositories for tests
package repotest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Epoch is the author time of the first commit; each commit advances one hour
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Builder writes files and commits them with deterministic signatures
type Builder struct {
	t     testing.TB
	Dir   string
	repo  *git.Repository
	wt    *git.Worktree
	clock time.Time
}

// New initializes an empty repository in a temporary directory
func New(t testing.TB) *Builder {
	t.Helper()
	return NewAt(t, t.TempDir())
}

// NewAt initializes an empty repository in dir
func NewAt(t testing.TB, dir string) *Builder {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &Builder{t: t, Dir: dir, repo: repo, wt: wt, clock: Epoch}
}

// Write creates or replaces a file and stages it
func (b *Builder) Write(path, content string) *Builder {
	b.t.Helper()
	full := filepath.Join(b.Dir, path)
	require.NoError(b.t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(b.t, os.WriteFile(full, []byte(content), 0644))
	_, err := b.wt.Add(path)
	require.NoError(b.t, err)
	return b
}

// Remove deletes a file and stages the removal
func (b *Builder) Remove(path string) *Builder {
	b.t.Helper()
	_, err := b.wt.Remove(path)
	require.NoError(b.t, err)
	return b
}

// Move renames a file and stages the rename
func (b *Builder) Move(from, to string) *Builder {
	b.t.Helper()
	require.NoError(b.t, os.MkdirAll(filepath.Dir(filepath.Join(b.Dir, to)), 0755))
	_, err := b.wt.Move(from, to)
	require.NoError(b.t, err)
	return b
}

// CommitOption adjusts a single commit
type CommitOption func(*commitConfig)

type commitConfig struct {
	name    string
	email   string
	when    time.Time
	parents []string
}

// Author overrides the author (and committer) identity
func Author(name, email string) CommitOption {
	return func(c *commitConfig) {
		c.name = name
		c.email = email
	}
}

// At overrides the commit time
func At(when time.Time) CommitOption {
	return func(c *commitConfig) { c.when = when }
}

// MergeOf records extra parents after HEAD
func MergeOf(hashes ...string) CommitOption {
	return func(c *commitConfig) { c.parents = append(c.parents, hashes...) }
}

// Commit records the staged tree and returns the new hash
func (b *Builder) Commit(msg string, opts ...CommitOption) string {
	b.t.Helper()

	cfg := commitConfig{name: "Alice", email: "alice@example.com", when: b.clock}
	for _, opt := range opts {
		opt(&cfg)
	}
	b.clock = b.clock.Add(time.Hour)

	sig := &object.Signature{Name: cfg.name, Email: cfg.email, When: cfg.when}
	options := &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true}
	if len(cfg.parents) > 0 {
		head, err := b.repo.Head()
		require.NoError(b.t, err)
		options.Parents = []plumbing.Hash{head.Hash()}
		for _, p := range cfg.parents {
			options.Parents = append(options.Parents, plumbing.NewHash(p))
		}
	}

	hash, err := b.wt.Commit(msg, options)
	require.NoError(b.t, err)
	return hash.String()
}

// Checkout switches to branch, creating it at HEAD when create is set
func (b *Builder) Checkout(branch string, create bool) *Builder {
	b.t.Helper()
	err := b.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
	})
	require.NoError(b.t, err)
	return b
}

// Tag creates a lightweight tag
func (b *Builder) Tag(name, hash string) *Builder {
	b.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), plumbing.NewHash(hash))
	require.NoError(b.t, b.repo.Storer.SetReference(ref))
	return b
}

// AnnotatedTag creates a tag object pointing at hash
func (b *Builder) AnnotatedTag(name, hash string) *Builder {
	b.t.Helper()
	_, err := b.repo.CreateTag(name, plumbing.NewHash(hash), &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Alice", Email: "alice@example.com", When: b.clock},
		Message: "release " + name,
	})
	require.NoError(b.t, err)
	return b
}

// Head returns the current HEAD hash
func (b *Builder) Head() string {
	b.t.Helper()
	head, err := b.repo.Head()
	require.NoError(b.t, err)
	return head.Hash().String()
}
