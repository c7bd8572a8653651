// Package repository provides access to git repositories: opening and
// cloning, revision walks, per-file diffs, blob contents, and branch and tag
// membership. Two implementations exist: CLIBackend drives the git binary,
// GoGitBackend is pure Go.
package repository

import (
	"context"
	"fmt"
	"time"
)

// Signature identifies an author or committer at a point in time
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Revision is one commit as read from the repository
type Revision struct {
	Hash      string
	Author    Signature
	Committer Signature
	Message   string
	Parents   []string
}

// Order is the order in which a walk yields revisions
type Order string

const (
	// OrderDefault yields oldest first
	OrderDefault Order = ""
	// OrderReverse yields newest first (git's natural log order)
	OrderReverse    Order = "reverse"
	OrderDate       Order = "date-order"
	OrderAuthorDate Order = "author-date-order"
	OrderTopo       Order = "topo-order"
)

// ParseOrder validates an order name
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case OrderDefault, OrderReverse, OrderDate, OrderAuthorDate, OrderTopo:
		return o, nil
	}
	return "", fmt.Errorf("unknown order %q (expected reverse, date-order, author-date-order or topo-order)", s)
}

// WalkRequest describes a revision walk: every revision reachable from
// Include (HEAD when empty) and not reachable from Exclude
type WalkRequest struct {
	Include  []string
	Exclude  []string
	MaxCount int
	Order    Order
	AllRefs  bool
	Remotes  bool
}

// DiffOptions are diff-algorithm hints
type DiffOptions struct {
	Histogram        bool
	IgnoreWhitespace bool
}

// FileDiff is one file's change between two revisions. Blob hashes are
// empty when the side does not exist.
type FileDiff struct {
	OldPath string
	NewPath string
	NewFile bool
	Deleted bool
	Renamed bool
	Copied  bool
	Binary  bool
	OldBlob string
	NewBlob string
	// Patch holds the unified diff hunks, starting at the first @@ header
	Patch string
}

// RevisionIterator yields revisions lazily. Next returns io.EOF when the
// walk is exhausted.
type RevisionIterator interface {
	Next() (*Revision, error)
	Close() error
}

// Backend is an open repository handle
type Backend interface {
	// Path is the local working directory of the repository
	Path() string
	// Resolve looks up a commit by hash, branch, tag or any revision expression
	Resolve(ctx context.Context, rev string) (*Revision, error)
	// Walk starts a lazy revision walk
	Walk(ctx context.Context, req WalkRequest) (RevisionIterator, error)
	// Diff compares parent (empty tree when "") with hash
	Diff(ctx context.Context, parent, hash string, opts DiffOptions) ([]FileDiff, error)
	// ReadBlob returns raw blob content
	ReadBlob(ctx context.Context, hash string) ([]byte, error)
	// BranchesContaining lists local branches whose history includes hash
	BranchesContaining(ctx context.Context, hash string) ([]string, error)
	// Tags maps tag names to the commit hash they point at
	Tags(ctx context.Context) (map[string]string, error)
	// CommitsTouching lists commits that modified path
	CommitsTouching(ctx context.Context, path string) ([]string, error)
	// CurrentBranch is the branch HEAD points at
	CurrentBranch(ctx context.Context) (string, error)
	// Close releases the handle
	Close() error
}

// Opener creates backend handles
type Opener interface {
	Open(ctx context.Context, path string) (Backend, error)
	Clone(ctx context.Context, url, dir string) (Backend, error)
}

// emptyBlob reports whether a blob id denotes a missing side
func emptyBlob(hash string) bool {
	if hash == "" {
		return true
	}
	for _, c := range hash {
		if c != '0' {
			return false
		}
	}
	return true
}
