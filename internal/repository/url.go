package repository

import (
	"regexp"
	"strings"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

// IsRemote reports whether path should be cloned before mining
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://")
}

// RepoNameFromURL returns the repository name: the text between the last
// slash and the trailing .git suffix (or the end of the URL)
func RepoNameFromURL(url string) (string, error) {
	lastSlash := strings.LastIndex(url, "/")
	lastSuffix := strings.LastIndex(url, ".git")
	if lastSuffix < 0 {
		lastSuffix = len(url)
	}

	if lastSlash < 0 || lastSuffix <= lastSlash {
		return "", apperrors.ConfigErrorf("badly formatted url %s", url)
	}

	return url[lastSlash+1 : lastSuffix], nil
}

var (
	httpsRepoRegex = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/]+)`)
	sshRepoRegex   = regexp.MustCompile(`git@[^:]+:([^/]+)/([^/]+)`)
	gitRepoRegex   = regexp.MustCompile(`git://[^/]+/([^/]+)/([^/]+)`)
)

// ParseRepoURL extracts org and repo name from git remote URL
// Supports multiple URL formats:
//   - HTTPS: https://github.com/owner/repo.git
//   - SSH: git@github.com:owner/repo.git
//   - Git protocol: git://github.com/owner/repo.git
func ParseRepoURL(remoteURL string) (org, repo string, err error) {
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	for _, re := range []*regexp.Regexp{httpsRepoRegex, sshRepoRegex, gitRepoRegex} {
		if matches := re.FindStringSubmatch(remoteURL); len(matches) == 3 {
			return matches[1], matches[2], nil
		}
	}

	return "", "", apperrors.ConfigErrorf("unrecognized git URL format: %s", remoteURL)
}
