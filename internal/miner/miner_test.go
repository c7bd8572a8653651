package miner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitminer/internal/commits"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
	"github.com/rohankatakam/gitminer/internal/repository/repotest"
	"github.com/rohankatakam/gitminer/internal/selection"
)

// trackingOpener opens repositories with go-git, serves clones from a local
// fixture and counts released backends
type trackingOpener struct {
	inner   repository.Opener
	fixture string

	clonedURLs []string
	clonedDirs []string
	closed     int
}

func newTrackingOpener(fixture string) *trackingOpener {
	return &trackingOpener{inner: repository.NewGoGitOpener(nil), fixture: fixture}
}

func (o *trackingOpener) Open(ctx context.Context, path string) (repository.Backend, error) {
	b, err := o.inner.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &trackedBackend{Backend: b, opener: o}, nil
}

func (o *trackingOpener) Clone(ctx context.Context, url, dir string) (repository.Backend, error) {
	o.clonedURLs = append(o.clonedURLs, url)
	o.clonedDirs = append(o.clonedDirs, dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return o.Open(ctx, o.fixture)
}

type trackedBackend struct {
	repository.Backend
	opener *trackingOpener
}

func (b *trackedBackend) Close() error {
	b.opener.closed++
	return b.Backend.Close()
}

type fixture struct {
	dir    string
	hashes []string
}

func pythonRepo(t *testing.T) fixture {
	t.Helper()
	b := repotest.New(t)
	c1 := b.Write("a.py", "def f(x):\n    return x\n").Commit("add f", repotest.Author("alice", "alice@example.com"))
	c2 := b.Write("a.py", "def f(x):\n    if x:\n        return 1\n    return x\n").Commit("branch in f", repotest.Author("bob", "bob@example.com"))
	c3 := b.Write("README.md", "# demo\n").Commit("docs", repotest.Author("alice", "alice@example.com"))
	return fixture{dir: b.Dir, hashes: []string{c1, c2, c3}}
}

func collect(t *testing.T, m *Miner) []string {
	t.Helper()
	var hashes []string
	for c, err := range m.Traverse(context.Background()) {
		require.NoError(t, err)
		hashes = append(hashes, c.Hash)
	}
	return hashes
}

func TestNew_Validation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		opts Options
	}{
		{"no repositories", Options{}},
		{"url without slash", Options{Repositories: []string{"git@github.com:project.git"}}},
		{"clone_to is a file", Options{Repositories: []string{"."}, CloneTo: file}},
		{"clone_to missing", Options{Repositories: []string{"."}, CloneTo: filepath.Join(t.TempDir(), "missing")}},
		{"invalid selection", Options{Repositories: []string{"."}, Selection: selection.Config{Single: "abc", FromTag: "v1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorIs(t, err, apperrors.ErrConfiguration)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(Options{Repositories: []string{"https://github.com/acme/project.git"}})
	require.NoError(t, err)
	assert.NotNil(t, m.opts.Opener)
	assert.NotNil(t, m.opts.Analyzer)
	assert.NotNil(t, m.logger)
}

func TestMiner_TraverseLocalRepository(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{Repositories: []string{repo.dir}, Opener: opener})
	require.NoError(t, err)

	var seen []string
	for c, err := range m.Traverse(context.Background()) {
		require.NoError(t, err)
		seen = append(seen, c.Hash)
		assert.Equal(t, filepath.Base(repo.dir), c.ProjectName)

		if c.Hash == repo.hashes[1] {
			// lazy properties are usable while the repository is being walked
			mods, err := c.Modifications(context.Background())
			require.NoError(t, err)
			require.Len(t, mods, 1)
			assert.Equal(t, "a.py", mods[0].Filename())

			complexity, err := c.DMMUnitComplexity(context.Background())
			require.NoError(t, err)
			require.NotNil(t, complexity)
		}
	}

	assert.Equal(t, repo.hashes, seen)
	assert.Equal(t, 1, opener.closed)
}

func TestMiner_LazyPropertiesAfterRelease(t *testing.T) {
	repo := pythonRepo(t)
	m, err := New(Options{Repositories: []string{repo.dir}, Opener: repository.NewGoGitOpener(nil)})
	require.NoError(t, err)

	var all []*commits.Commit
	for c, err := range m.Traverse(context.Background()) {
		require.NoError(t, err)
		all = append(all, c)
	}
	require.Len(t, all, 3)

	ctx := context.Background()
	_, err = all[1].Modifications(ctx)
	assert.ErrorIs(t, err, apperrors.ErrBackend)

	_, err = all[1].InMainBranch(ctx)
	assert.ErrorIs(t, err, apperrors.ErrBackend)

	_, err = all[1].DMMUnitSize(ctx)
	assert.ErrorIs(t, err, apperrors.ErrBackend)
}

func TestMiner_OnlyAuthors(t *testing.T) {
	repo := pythonRepo(t)

	tests := []struct {
		authors []string
		want    []string
	}{
		{[]string{"alice"}, []string{repo.hashes[0], repo.hashes[2]}},
		{[]string{"bob"}, []string{repo.hashes[1]}},
		{[]string{"carol"}, nil},
	}
	for _, tt := range tests {
		m, err := New(Options{
			Repositories: []string{repo.dir},
			Selection:    selection.Config{OnlyAuthors: tt.authors},
			Opener:       newTrackingOpener(""),
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, collect(t, m), tt.authors)
	}
}

func TestMiner_NewestFirst(t *testing.T) {
	repo := pythonRepo(t)
	m, err := New(Options{
		Repositories: []string{repo.dir},
		Selection:    selection.Config{Order: "reverse"},
		Opener:       newTrackingOpener(""),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{repo.hashes[2], repo.hashes[1], repo.hashes[0]}, collect(t, m))
}

func TestMiner_MultipleRepositories(t *testing.T) {
	first := pythonRepo(t)
	second := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{Repositories: []string{first.dir, second.dir}, Opener: opener})
	require.NoError(t, err)

	it := m.Commits(context.Background())
	defer it.Close()

	var paths []string
	for it.Next() {
		paths = append(paths, it.Commit().ProjectPath)
		if len(paths) == 4 {
			// the first repository was drained and released
			assert.Equal(t, 1, opener.closed)
		}
	}
	require.NoError(t, it.Err())

	require.Len(t, paths, 6)
	for i, p := range paths {
		want := first.dir
		if i >= 3 {
			want = second.dir
		}
		assert.Equal(t, want, p)
	}
	assert.Equal(t, 2, opener.closed)
	assert.False(t, it.Next())
	assert.NoError(t, it.Close())
}

func TestMiner_EarlyBreakReleasesRepository(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{Repositories: []string{repo.dir}, Opener: opener})
	require.NoError(t, err)

	for c, err := range m.Traverse(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, repo.hashes[0], c.Hash)
		break
	}
	assert.Equal(t, 1, opener.closed)
}

func TestIterator_CloseIsIdempotent(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{Repositories: []string{repo.dir}, Opener: opener})
	require.NoError(t, err)

	it := m.Commits(context.Background())
	require.True(t, it.Next())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())

	assert.False(t, it.Next())
	assert.Nil(t, it.Commit())
	assert.Equal(t, 1, opener.closed)
}

func TestMiner_CloneIntoTemporaryDirectory(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener(repo.dir)
	url := "https://github.com/acme/project.git"

	m, err := New(Options{Repositories: []string{url}, Opener: opener})
	require.NoError(t, err)

	assert.Equal(t, repo.hashes, collect(t, m))

	require.Len(t, opener.clonedDirs, 1)
	assert.Equal(t, []string{url}, opener.clonedURLs)
	assert.Equal(t, "project", filepath.Base(opener.clonedDirs[0]))

	_, err = os.Stat(filepath.Dir(opener.clonedDirs[0]))
	assert.True(t, os.IsNotExist(err), "temporary clone directory is removed after the walk")
}

func TestMiner_CloneIntoConfiguredDirectory(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener(repo.dir)
	cloneTo := t.TempDir()

	m, err := New(Options{
		Repositories: []string{"git@github.com:acme/project.git"},
		CloneTo:      cloneTo,
		Opener:       opener,
	})
	require.NoError(t, err)

	assert.Equal(t, repo.hashes, collect(t, m))
	assert.Equal(t, []string{filepath.Join(cloneTo, "project")}, opener.clonedDirs)
	assert.DirExists(t, filepath.Join(cloneTo, "project"))
}

func TestMiner_ReusesExistingClone(t *testing.T) {
	cloneTo := t.TempDir()
	b := repotest.NewAt(t, filepath.Join(cloneTo, "project"))
	hash := b.Write("main.go", "package main\n").Commit("init")
	opener := newTrackingOpener("")

	m, err := New(Options{
		Repositories: []string{"https://github.com/acme/project"},
		CloneTo:      cloneTo,
		Opener:       opener,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{hash}, collect(t, m))
	assert.Empty(t, opener.clonedDirs)
}

func TestMiner_UnknownRevisionStopsIteration(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{
		Repositories: []string{repo.dir},
		Selection:    selection.Config{FromCommit: "0123456789abcdef0123456789abcdef01234567"},
		Opener:       opener,
	})
	require.NoError(t, err)

	it := m.Commits(context.Background())
	defer it.Close()

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), apperrors.ErrConfiguration)
	assert.Contains(t, it.Err().Error(), "from_commit")
	assert.Equal(t, 1, opener.closed)
}

func TestMiner_MissingRepository(t *testing.T) {
	m, err := New(Options{
		Repositories: []string{filepath.Join(t.TempDir(), "nope")},
		Opener:       newTrackingOpener(""),
	})
	require.NoError(t, err)

	var errs []error
	for c, err := range m.Traverse(context.Background()) {
		assert.Nil(t, c)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestMiner_CancelledContext(t *testing.T) {
	repo := pythonRepo(t)
	opener := newTrackingOpener("")

	m, err := New(Options{Repositories: []string{repo.dir}, Opener: opener})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	it := m.Commits(ctx)
	defer it.Close()

	require.True(t, it.Next())
	cancel()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
	assert.Equal(t, 1, opener.closed)
}
