package selection

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/gitminer/internal/commits"
	apperrors "github.com/rohankatakam/gitminer/internal/errors"
	"github.com/rohankatakam/gitminer/internal/repository"
	"github.com/rohankatakam/gitminer/internal/repository/repotest"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestConfig_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{}, false},
		{"single alone", Config{Single: "abc"}, false},
		{"single with since", Config{Single: "abc", Since: &now}, true},
		{"single with to", Config{Single: "abc", To: &now}, true},
		{"single with from_commit", Config{Single: "abc", FromCommit: "def"}, true},
		{"single with to_tag", Config{Single: "abc", ToTag: "v1"}, true},
		{"commit range", Config{FromCommit: "a", ToCommit: "b"}, false},
		{"tag range", Config{FromTag: "v1", ToTag: "v2"}, false},
		{"from_commit with from_tag", Config{FromCommit: "a", FromTag: "v1"}, true},
		{"to_commit with to_tag", Config{ToCommit: "a", ToTag: "v1"}, true},
		{"from_commit with to_tag", Config{FromCommit: "a", ToTag: "v1"}, true},
		{"date window", Config{Since: &now, To: &now}, false},
		{"known order", Config{Order: "topo-order"}, false},
		{"unknown order", Config{Order: "random"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

type fakeResolver map[string]*repository.Revision

func (f fakeResolver) Resolve(_ context.Context, rev string) (*repository.Revision, error) {
	if r, ok := f[rev]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("unknown revision %s", rev)
}

func TestFilter_BuildArgs(t *testing.T) {
	resolver := fakeResolver{
		"root":    {Hash: "r00t"},
		"mid":     {Hash: "m1d", Parents: []string{"r00t"}},
		"merge":   {Hash: "m3rg3", Parents: []string{"p1", "p2"}},
		"v1":      {Hash: "m1d", Parents: []string{"r00t"}},
		"develop": {Hash: "d3v"},
	}
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
		want repository.WalkRequest
	}{
		{
			name: "defaults",
			cfg:  Config{},
			want: repository.WalkRequest{Include: []string{"HEAD"}},
		},
		{
			name: "single",
			cfg:  Config{Single: "mid", IncludeRefs: true},
			want: repository.WalkRequest{Include: []string{"m1d"}, MaxCount: 1},
		},
		{
			name: "from commit excludes its parent",
			cfg:  Config{FromCommit: "mid", Order: "reverse"},
			want: repository.WalkRequest{Include: []string{"HEAD"}, Exclude: []string{"r00t"}, Order: repository.OrderReverse},
		},
		{
			name: "from root excludes nothing",
			cfg:  Config{FromCommit: "root", ToCommit: "mid"},
			want: repository.WalkRequest{Include: []string{"m1d"}},
		},
		{
			name: "from merge excludes every parent",
			cfg:  Config{FromCommit: "merge"},
			want: repository.WalkRequest{Include: []string{"HEAD"}, Exclude: []string{"p1", "p2"}},
		},
		{
			name: "tag range",
			cfg:  Config{FromTag: "v1", ToTag: "v1"},
			want: repository.WalkRequest{Include: []string{"m1d"}, Exclude: []string{"r00t"}},
		},
		{
			name: "branch and refs",
			cfg:  Config{OnlyInBranch: "develop", IncludeRefs: true, IncludeRemotes: true, Order: "date-order"},
			want: repository.WalkRequest{Include: []string{"d3v"}, AllRefs: true, Remotes: true, Order: repository.OrderDate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.cfg, nil)
			require.NoError(t, err)
			got, err := f.BuildArgs(ctx, resolver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_BuildArgsUnknownRevision(t *testing.T) {
	f, err := NewFilter(Config{FromCommit: "nope"}, nil)
	require.NoError(t, err)

	_, err = f.BuildArgs(context.Background(), fakeResolver{})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Contains(t, err.Error(), "from_commit")
}

func TestNewFilter_RejectsInvalidConfig(t *testing.T) {
	_, err := NewFilter(Config{Single: "a", FromTag: "v1"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func commitOf(hash, author string, when time.Time, parents ...string) *commits.Commit {
	return commits.New(&repository.Revision{
		Hash:    hash,
		Author:  repository.Signature{Name: author, Email: author + "@example.com", When: when},
		Parents: parents,
	}, commits.Source{})
}

func TestFilter_IsCommitFiltered(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	alice := commitOf("a1", "alice", day(1), "p")
	bob := commitOf("b1", "bob", day(5), "p")
	merge := commitOf("m1", "alice", day(10), "p", "q")
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      Config
		filtered []bool // alice, bob, merge
	}{
		{"no filters", Config{}, []bool{false, false, false}},
		{"only alice", Config{OnlyAuthors: []string{"alice"}}, []bool{false, true, false}},
		{"only commits", Config{OnlyCommits: []string{"b1", "m1"}}, []bool{true, false, false}},
		{"no merges", Config{OnlyNoMerge: true}, []bool{false, false, true}},
		{"since is inclusive", Config{Since: timePtr(day(5))}, []bool{true, false, false}},
		{"to is inclusive", Config{To: timePtr(day(5))}, []bool{false, false, true}},
		{"empty window", Config{Since: timePtr(day(6)), To: timePtr(day(4))}, []bool{true, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.cfg, nil)
			require.NoError(t, err)
			for i, c := range []*commits.Commit{alice, bob, merge} {
				got, err := f.IsCommitFiltered(ctx, c)
				require.NoError(t, err)
				assert.Equal(t, tt.filtered[i], got, c.Hash)
			}
		})
	}
}

func walkCommits(t *testing.T, backend repository.Backend, f *Filter) []string {
	t.Helper()
	ctx := context.Background()

	req, err := f.BuildArgs(ctx, backend)
	require.NoError(t, err)
	require.NoError(t, f.Prepare(ctx, backend))

	it, err := backend.Walk(ctx, req)
	require.NoError(t, err)
	defer it.Close()

	var kept []string
	for {
		rev, err := it.Next()
		if err == io.EOF {
			return kept
		}
		require.NoError(t, err)
		c := commits.New(rev, commits.Source{Backend: backend})
		filtered, err := f.IsCommitFiltered(ctx, c)
		require.NoError(t, err)
		if !filtered {
			kept = append(kept, c.Hash)
		}
	}
}

func TestFilter_AgainstRepository(t *testing.T) {
	b := repotest.New(t)
	c1 := b.Write("src/app.py", "x = 1\n").Commit("c1")
	c2 := b.Write("README.md", "# readme\n").Commit("c2", repotest.Author("Bob", "bob@example.com"))
	c3 := b.Write("src/app.py", "x = 2\n").Write("web/ui.js", "let y = 1;\n").Commit("c3")
	c4 := b.Write("README.md", "# readme 2\n").Commit("c4")
	b.Tag("v0.1", c2)

	backend, err := repository.NewGoGitOpener(nil).Open(context.Background(), b.Dir)
	require.NoError(t, err)
	defer backend.Close()

	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"all", Config{}, []string{c1, c2, c3, c4}},
		{"newest first", Config{Order: "reverse"}, []string{c4, c3, c2, c1}},
		{"file types", Config{OnlyModificationsWithFileTypes: []string{".js", ".py"}}, []string{c1, c3}},
		{"filepath", Config{Filepath: "src/app.py"}, []string{c1, c3}},
		{"releases", Config{OnlyReleases: true}, []string{c1, c2}},
		{"from commit inclusive", Config{FromCommit: c2}, []string{c2, c3, c4}},
		{"commit range", Config{FromCommit: c2, ToCommit: c3}, []string{c2, c3}},
		{"single", Config{Single: c3}, []string{c3}},
		{"authors", Config{OnlyAuthors: []string{"Bob"}}, []string{c2}},
		{"tag range", Config{ToTag: "v0.1"}, []string{c1, c2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, walkCommits(t, backend, f))
		})
	}
}
