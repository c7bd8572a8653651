package repository

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/gitminer/internal/errors"
)

// gitlinkMode marks submodule entries, which have no blob
const gitlinkMode = "160000"

// logFormat separates fields with US (0x1f); -z terminates records with NUL
const logFormat = "%H%x1f%P%x1f%an%x1f%ae%x1f%aI%x1f%cn%x1f%ce%x1f%cI%x1f%B"

// CLIOpener opens repositories backed by the git executable
type CLIOpener struct {
	GitPath string
	Logger  logrus.FieldLogger
}

// NewCLIOpener returns an opener using git from PATH
func NewCLIOpener(logger logrus.FieldLogger) *CLIOpener {
	return &CLIOpener{GitPath: "git", Logger: logger}
}

// Open validates that path is a git repository
func (o *CLIOpener) Open(ctx context.Context, path string) (Backend, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "resolve path %s", path)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, apperrors.BackendErrorf(err, "repository path %s is not a directory", abs)
	}

	b := &CLIBackend{path: abs, gitPath: o.gitPath(), logger: loggerOrDiscard(o.Logger)}
	if _, err := b.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, apperrors.BackendErrorf(err, "%s is not a git repository", abs)
	}
	return b, nil
}

// Clone runs git clone into dir and opens the result
func (o *CLIOpener) Clone(ctx context.Context, url, dir string) (Backend, error) {
	cmd := exec.CommandContext(ctx, o.gitPath(), "clone", "--quiet", url, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.BackendErrorf(err, "git clone %s failed: %s", url, strings.TrimSpace(stderr.String()))
	}
	return o.Open(ctx, dir)
}

func (o *CLIOpener) gitPath() string {
	if o.GitPath == "" {
		return "git"
	}
	return o.GitPath
}

// CLIBackend runs git subprocesses in the repository directory
type CLIBackend struct {
	path    string
	gitPath string
	logger  logrus.FieldLogger

	emptyTreeOnce sync.Once
	emptyTree     string
	emptyTreeErr  error
}

var _ Backend = (*CLIBackend)(nil)

func (b *CLIBackend) Path() string { return b.path }

func (b *CLIBackend) Close() error { return nil }

func (b *CLIBackend) command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"-c", "core.quotepath=false", "-c", "log.showSignature=false"}, args...)
	cmd := exec.CommandContext(ctx, b.gitPath, full...)
	cmd.Dir = b.path
	return cmd
}

func (b *CLIBackend) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := b.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "git %s failed: %s", args[0], strings.TrimSpace(stderr.String())).
			WithContext("repository", b.path)
	}
	return out, nil
}

// Resolve peels rev to a commit
func (b *CLIBackend) Resolve(ctx context.Context, rev string) (*Revision, error) {
	out, err := b.git(ctx, "log", "-1", "-z", "--format="+logFormat, rev, "--")
	if err != nil {
		return nil, err
	}
	record := strings.TrimSuffix(string(out), "\x00")
	if record == "" {
		return nil, apperrors.BackendErrorf(nil, "revision %s not found", rev)
	}
	return parseRevision(record)
}

// Walk streams git log output; the subprocess is killed on Close
func (b *CLIBackend) Walk(ctx context.Context, req WalkRequest) (RevisionIterator, error) {
	walkCtx, cancel := context.WithCancel(ctx)
	cmd := b.command(walkCtx, logArgs(req)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, apperrors.BackendError(err, "open git log pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, apperrors.BackendError(err, "start git log")
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 256*1024*1024)
	scanner.Split(splitNUL)

	b.logger.WithField("args", strings.Join(logArgs(req), " ")).Debug("Started revision walk")
	return &cliIterator{cmd: cmd, cancel: cancel, scanner: scanner, stderr: stderr}, nil
}

func logArgs(req WalkRequest) []string {
	args := []string{"log", "-z", "--format=" + logFormat}

	switch req.Order {
	case OrderDefault:
		args = append(args, "--reverse")
	case OrderReverse:
	default:
		args = append(args, "--"+string(req.Order))
	}
	if req.MaxCount > 0 {
		args = append(args, "--max-count="+strconv.Itoa(req.MaxCount))
	}
	if req.AllRefs {
		args = append(args, "--all")
	}
	if req.Remotes {
		args = append(args, "--remotes")
	}

	include := req.Include
	if len(include) == 0 {
		include = []string{"HEAD"}
	}
	args = append(args, include...)
	for _, rev := range req.Exclude {
		args = append(args, "^"+rev)
	}
	return append(args, "--")
}

type cliIterator struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	stderr  *bytes.Buffer
	done    bool
	err     error
}

func (it *cliIterator) Next() (*Revision, error) {
	if it.done {
		return nil, it.err
	}

	for it.scanner.Scan() {
		record := strings.TrimPrefix(it.scanner.Text(), "\n")
		if record == "" {
			continue
		}
		rev, err := parseRevision(record)
		if err != nil {
			it.finish(err)
			return nil, err
		}
		return rev, nil
	}

	if err := it.scanner.Err(); err != nil {
		it.finish(apperrors.BackendError(err, "read git log output"))
		return nil, it.err
	}
	if err := it.cmd.Wait(); err != nil {
		it.cancel()
		it.done = true
		it.err = apperrors.BackendErrorf(err, "git log failed: %s", strings.TrimSpace(it.stderr.String()))
		return nil, it.err
	}
	it.cancel()
	it.done = true
	it.err = io.EOF
	return nil, io.EOF
}

func (it *cliIterator) finish(err error) {
	it.cancel()
	_ = it.cmd.Wait()
	it.done = true
	it.err = err
}

func (it *cliIterator) Close() error {
	if !it.done {
		it.finish(io.EOF)
	}
	return nil
}

func splitNUL(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseRevision(record string) (*Revision, error) {
	fields := strings.SplitN(record, "\x1f", 9)
	if len(fields) != 9 {
		return nil, apperrors.BackendErrorf(nil, "malformed git log record (%d fields)", len(fields))
	}

	authored, err := time.Parse(time.RFC3339, fields[4])
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "parse author date %q", fields[4])
	}
	committed, err := time.Parse(time.RFC3339, fields[7])
	if err != nil {
		return nil, apperrors.BackendErrorf(err, "parse committer date %q", fields[7])
	}

	return &Revision{
		Hash:      fields[0],
		Parents:   strings.Fields(fields[1]),
		Author:    Signature{Name: fields[2], Email: fields[3], When: authored},
		Committer: Signature{Name: fields[5], Email: fields[6], When: committed},
		Message:   fields[8],
	}, nil
}

// Diff runs git diff between parent (or the empty tree) and hash
func (b *CLIBackend) Diff(ctx context.Context, parent, hash string, opts DiffOptions) ([]FileDiff, error) {
	if parent == "" {
		empty, err := b.emptyTreeHash(ctx)
		if err != nil {
			return nil, err
		}
		parent = empty
	}

	args := []string{"diff", "--no-color", "--no-ext-diff", "--no-textconv", "--full-index", "-M",
		"--src-prefix=a/", "--dst-prefix=b/"}
	if opts.Histogram {
		args = append(args, "--histogram")
	}
	if opts.IgnoreWhitespace {
		args = append(args, "-w")
	}
	args = append(args, parent, hash, "--")

	out, err := b.git(ctx, args...)
	if err != nil {
		return nil, err
	}

	diffs := parseDiffOutput(string(out))
	for i := range diffs {
		d := &diffs[i]
		// exact renames and copies print no index line
		if (d.Renamed || d.Copied) && d.OldBlob == "" && d.NewBlob == "" {
			if d.OldBlob, err = b.blobAt(ctx, parent, d.OldPath); err != nil {
				return nil, err
			}
			if d.NewBlob, err = b.blobAt(ctx, hash, d.NewPath); err != nil {
				return nil, err
			}
		}
	}
	return diffs, nil
}

func (b *CLIBackend) blobAt(ctx context.Context, rev, path string) (string, error) {
	out, err := b.git(ctx, "rev-parse", "--verify", rev+":"+path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *CLIBackend) emptyTreeHash(ctx context.Context) (string, error) {
	b.emptyTreeOnce.Do(func() {
		cmd := b.command(ctx, "hash-object", "-t", "tree", "--stdin")
		cmd.Stdin = strings.NewReader("")
		out, err := cmd.Output()
		if err != nil {
			b.emptyTreeErr = apperrors.BackendError(err, "compute empty tree id")
			return
		}
		b.emptyTree = strings.TrimSpace(string(out))
	})
	return b.emptyTree, b.emptyTreeErr
}

// parseDiffOutput splits git diff output into per-file entries
func parseDiffOutput(out string) []FileDiff {
	var (
		diffs   []FileDiff
		cur     *FileDiff
		patch   []string
		inPatch bool
		gitlink bool
	)

	flush := func() {
		if cur == nil {
			return
		}
		for len(patch) > 0 && patch[len(patch)-1] == "" {
			patch = patch[:len(patch)-1]
		}
		cur.Patch = strings.Join(patch, "\n")
		if gitlink {
			cur.OldBlob, cur.NewBlob = "", ""
		}
		if cur.NewFile {
			cur.OldPath = ""
		}
		if cur.Deleted {
			cur.NewPath = ""
		}
		diffs = append(diffs, *cur)
	}

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			cur = &FileDiff{}
			cur.OldPath, cur.NewPath = splitDiffHeader(strings.TrimPrefix(line, "diff --git "))
			patch = nil
			inPatch = false
			gitlink = false
			continue
		}
		if cur == nil {
			continue
		}
		if inPatch {
			patch = append(patch, line)
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			inPatch = true
			patch = append(patch, line)
		case strings.HasPrefix(line, "new file mode"):
			cur.NewFile = true
			gitlink = gitlink || strings.HasSuffix(line, gitlinkMode)
		case strings.HasPrefix(line, "deleted file mode"):
			cur.Deleted = true
			gitlink = gitlink || strings.HasSuffix(line, gitlinkMode)
		case strings.HasPrefix(line, "rename from "):
			cur.Renamed = true
			cur.OldPath = unquotePath(strings.TrimPrefix(line, "rename from "))
		case strings.HasPrefix(line, "rename to "):
			cur.NewPath = unquotePath(strings.TrimPrefix(line, "rename to "))
		case strings.HasPrefix(line, "copy from "):
			cur.Copied = true
			cur.OldPath = unquotePath(strings.TrimPrefix(line, "copy from "))
		case strings.HasPrefix(line, "copy to "):
			cur.NewPath = unquotePath(strings.TrimPrefix(line, "copy to "))
		case strings.HasPrefix(line, "index "):
			cur.OldBlob, cur.NewBlob = parseIndexLine(strings.TrimPrefix(line, "index "))
			gitlink = gitlink || strings.HasSuffix(line, " "+gitlinkMode)
		case strings.HasPrefix(line, "--- "):
			if p := markerPath(strings.TrimPrefix(line, "--- "), "a/"); p != "" {
				cur.OldPath = p
			}
		case strings.HasPrefix(line, "+++ "):
			if p := markerPath(strings.TrimPrefix(line, "+++ "), "b/"); p != "" {
				cur.NewPath = p
			}
		case strings.HasPrefix(line, "Binary files "):
			cur.Binary = true
		}
	}
	flush()

	return diffs
}

// splitDiffHeader reads the "a/<old> b/<new>" pair of a diff --git line
func splitDiffHeader(rest string) (string, string) {
	if strings.HasPrefix(rest, `"`) {
		if end := closingQuote(rest); end > 0 {
			old := strings.TrimPrefix(unquotePath(rest[:end+1]), "a/")
			newPath := strings.TrimPrefix(unquotePath(strings.TrimSpace(rest[end+1:])), "b/")
			return old, newPath
		}
	}

	// unrenamed entries repeat the same path on both sides
	if (len(rest)-5)%2 == 0 && len(rest) > 5 {
		n := (len(rest) - 5) / 2
		if strings.HasPrefix(rest, "a/") && rest[2+n:2+n+3] == " b/" && rest[2:2+n] == rest[5+n:] {
			return rest[2 : 2+n], rest[2 : 2+n]
		}
	}

	if i := strings.Index(rest, " b/"); i >= 0 {
		return strings.TrimPrefix(rest[:i], "a/"), rest[i+3:]
	}
	return rest, rest
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func unquotePath(p string) string {
	p = strings.TrimRight(p, "\t")
	if strings.HasPrefix(p, `"`) {
		if unquoted, err := strconv.Unquote(p); err == nil {
			return unquoted
		}
	}
	return p
}

func markerPath(p, prefix string) string {
	p = unquotePath(p)
	if p == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(p, prefix)
}

func parseIndexLine(s string) (string, string) {
	ids := strings.Fields(s)
	if len(ids) == 0 {
		return "", ""
	}
	old, newBlob, ok := strings.Cut(ids[0], "..")
	if !ok {
		return "", ""
	}
	if emptyBlob(old) {
		old = ""
	}
	if emptyBlob(newBlob) {
		newBlob = ""
	}
	return old, newBlob
}

// ReadBlob returns the raw blob
func (b *CLIBackend) ReadBlob(ctx context.Context, hash string) ([]byte, error) {
	return b.git(ctx, "cat-file", "blob", hash)
}

// BranchesContaining uses git branch --contains
func (b *CLIBackend) BranchesContaining(ctx context.Context, hash string) ([]string, error) {
	out, err := b.git(ctx, "branch", "--contains", hash, "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	branches := nonEmptyLines(string(out))
	sort.Strings(branches)
	return branches, nil
}

// Tags peels annotated tags to their commits
func (b *CLIBackend) Tags(ctx context.Context) (map[string]string, error) {
	out, err := b.git(ctx, "for-each-ref", "--format=%(refname:short)%00%(objectname)%00%(*objectname)", "refs/tags")
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string)
	for _, line := range nonEmptyLines(string(out)) {
		parts := strings.Split(line, "\x00")
		if len(parts) != 3 {
			return nil, apperrors.BackendErrorf(nil, "unexpected for-each-ref output: %q", line)
		}
		target := parts[1]
		if parts[2] != "" {
			target = parts[2]
		}
		tags[parts[0]] = target
	}
	return tags, nil
}

// CommitsTouching follows renames of path back through history
func (b *CLIBackend) CommitsTouching(ctx context.Context, path string) ([]string, error) {
	out, err := b.git(ctx, "log", "--follow", "--format=%H", "--", path)
	if err != nil {
		return nil, fmt.Errorf("git log --follow failed for file %s: %w", path, err)
	}
	return nonEmptyLines(string(out)), nil
}

// CurrentBranch returns the branch name, or HEAD when detached
func (b *CLIBackend) CurrentBranch(ctx context.Context) (string, error) {
	out, err := b.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func loggerOrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}
