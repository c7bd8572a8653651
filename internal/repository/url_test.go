package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("git@github.com:owner/repo.git"))
	assert.True(t, IsRemote("https://github.com/owner/repo"))
	assert.False(t, IsRemote("/home/user/repo"))
	assert.False(t, IsRemote("http://github.com/owner/repo"))
	assert.False(t, IsRemote("repos/git@local"))
}

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/ishepard/pydriller.git", "pydriller"},
		{"https://github.com/ishepard/pydriller", "pydriller"},
		{"git@github.com:ishepard/pydriller.git", "pydriller"},
		{"https://gitlab.com/group/sub/project.git", "project"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := RepoNameFromURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepoNameFromURL_Malformed(t *testing.T) {
	for _, url := range []string{"no-slash-here", "repo.git/"} {
		_, err := RepoNameFromURL(url)
		assert.ErrorIs(t, err, apperrors.ErrConfiguration, url)
	}
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url       string
		org, repo string
	}{
		{"https://github.com/owner/repo.git", "owner", "repo"},
		{"git@github.com:owner/repo.git", "owner", "repo"},
		{"git://github.com/owner/repo.git", "owner", "repo"},
	}
	for _, tt := range tests {
		org, repo, err := ParseRepoURL(tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.org, org)
		assert.Equal(t, tt.repo, repo)
	}

	_, _, err := ParseRepoURL("/local/path")
	assert.Error(t, err)
}
