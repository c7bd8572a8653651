package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/gitminer/internal/analyzer"
	"github.com/rohankatakam/gitminer/internal/config"
	"github.com/rohankatakam/gitminer/internal/miner"
	"github.com/rohankatakam/gitminer/internal/output"
	"github.com/rohankatakam/gitminer/internal/repository"
)

var traverseCmd = &cobra.Command{
	Use:   "traverse [repo...]",
	Short: "Stream the selected commits of one or more repositories",
	Long: `Walk every repository (local path or git@/https:// URL) and print each
selected commit. Repositories given as arguments replace the configured ones.

Examples:
  # Python changes by alice, oldest first
  gitminer traverse . --only-authors alice --file-types .py

  # A tag range of a remote repository as YAML
  gitminer traverse https://github.com/acme/project.git --from-tag v1.0 --to-tag v2.0 -o yaml`,
	RunE: runTraverse,
}

var traverseFlags struct {
	since, to            string
	fromCommit, toCommit string
	fromTag, toTag       string
	single               string
	includeRefs          bool
	includeRemotes       bool
	onlyInBranch         string
	fileTypes            []string
	onlyNoMerge          bool
	onlyAuthors          []string
	onlyCommits          []string
	onlyReleases         bool
	filepath             string
	order                string
	reverse              bool
	histogram            bool
	skipWhitespaces      bool
	cloneTo              string
	backend              string
	cachePath            string
	output               string
	noModifications      bool
	methods              bool
}

func init() {
	f := traverseCmd.Flags()
	f.StringVar(&traverseFlags.since, "since", "", "only commits authored at or after this date (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&traverseFlags.to, "to", "", "only commits authored at or before this date (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&traverseFlags.fromCommit, "from-commit", "", "start of the commit range (inclusive)")
	f.StringVar(&traverseFlags.toCommit, "to-commit", "", "end of the commit range (inclusive)")
	f.StringVar(&traverseFlags.fromTag, "from-tag", "", "start of the tag range (inclusive)")
	f.StringVar(&traverseFlags.toTag, "to-tag", "", "end of the tag range (inclusive)")
	f.StringVar(&traverseFlags.single, "single", "", "analyze this commit only")
	f.BoolVar(&traverseFlags.includeRefs, "include-refs", false, "walk every ref, not only HEAD")
	f.BoolVar(&traverseFlags.includeRemotes, "include-remotes", false, "walk remote-tracking branches too")
	f.StringVar(&traverseFlags.onlyInBranch, "only-in-branch", "", "walk this branch instead of HEAD")
	f.StringSliceVar(&traverseFlags.fileTypes, "file-types", nil, "only commits modifying files with these suffixes")
	f.BoolVar(&traverseFlags.onlyNoMerge, "no-merges", false, "skip merge commits")
	f.StringSliceVar(&traverseFlags.onlyAuthors, "only-authors", nil, "only commits by these author names")
	f.StringSliceVar(&traverseFlags.onlyCommits, "only-commits", nil, "only these commit hashes")
	f.BoolVar(&traverseFlags.onlyReleases, "only-releases", false, "only commits reachable from a tag")
	f.StringVar(&traverseFlags.filepath, "filepath", "", "only commits touching this path")
	f.StringVar(&traverseFlags.order, "order", "", "reverse, date-order, author-date-order or topo-order (default oldest first)")
	f.BoolVar(&traverseFlags.reverse, "reverse", false, "newest first (deprecated, use --order reverse)")
	f.BoolVar(&traverseFlags.histogram, "histogram", false, "use the histogram diff algorithm")
	f.BoolVar(&traverseFlags.skipWhitespaces, "skip-whitespaces", false, "ignore whitespace changes in diffs")
	f.StringVar(&traverseFlags.cloneTo, "clone-to", "", "existing directory for remote clones (default: temporary)")
	f.StringVar(&traverseFlags.backend, "backend", "", "git or go-git")
	f.StringVar(&traverseFlags.cachePath, "cache", "", "bbolt file caching source analyses")
	f.StringVarP(&traverseFlags.output, "output", "o", "", "jsonl, yaml or table (default: table on a terminal, jsonl otherwise)")
	f.BoolVar(&traverseFlags.noModifications, "no-modifications", false, "omit modified files")
	f.BoolVar(&traverseFlags.methods, "methods", false, "include changed methods of every modification")
}

// applyTraverseFlags copies explicitly set flags over the loaded configuration
func applyTraverseFlags(cmd *cobra.Command, c *config.Config, args []string) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	s := &c.Selection
	tf := &traverseFlags

	if len(args) > 0 {
		c.Repositories = args
	}
	set("since", func() { s.Since = tf.since })
	set("to", func() { s.To = tf.to })
	set("from-commit", func() { s.FromCommit = tf.fromCommit })
	set("to-commit", func() { s.ToCommit = tf.toCommit })
	set("from-tag", func() { s.FromTag = tf.fromTag })
	set("to-tag", func() { s.ToTag = tf.toTag })
	set("single", func() { s.Single = tf.single })
	set("include-refs", func() { s.IncludeRefs = tf.includeRefs })
	set("include-remotes", func() { s.IncludeRemotes = tf.includeRemotes })
	set("only-in-branch", func() { s.OnlyInBranch = tf.onlyInBranch })
	set("file-types", func() { s.OnlyModificationsWithFileTypes = tf.fileTypes })
	set("no-merges", func() { s.OnlyNoMerge = tf.onlyNoMerge })
	set("only-authors", func() { s.OnlyAuthors = tf.onlyAuthors })
	set("only-commits", func() { s.OnlyCommits = tf.onlyCommits })
	set("only-releases", func() { s.OnlyReleases = tf.onlyReleases })
	set("filepath", func() { s.Filepath = tf.filepath })
	set("order", func() { s.Order = tf.order })
	set("reverse", func() { s.ReversedOrder = tf.reverse })
	set("histogram", func() { s.Histogram = tf.histogram })
	set("skip-whitespaces", func() { s.SkipWhitespaces = tf.skipWhitespaces })
	set("clone-to", func() { c.CloneTo = tf.cloneTo })
	set("backend", func() { c.Backend = tf.backend })
	set("cache", func() { c.Analysis.CachePath = tf.cachePath })
	set("output", func() { c.Output.Format = tf.output })
	set("no-modifications", func() { c.Output.IncludeModifications = !tf.noModifications })
	set("methods", func() { c.Output.IncludeMethods = tf.methods })
}

func runTraverse(cmd *cobra.Command, args []string) error {
	applyTraverseFlags(cmd, cfg, args)

	result := cfg.Validate()
	for _, warn := range result.Warnings {
		logger.Warn(warn)
	}
	if err := result.Err(); err != nil {
		return err
	}

	sel, err := cfg.SelectionConfig(logger)
	if err != nil {
		return err
	}

	var analysis analyzer.Analyzer = analyzer.NewRegistry()
	if cfg.Analysis.CachePath != "" {
		cache, err := analyzer.OpenBoltCache(cfg.Analysis.CachePath, analysis, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		analysis = cache
	}

	m, err := miner.New(miner.Options{
		Repositories: cfg.Repositories,
		Selection:    sel,
		CloneTo:      cfg.CloneTo,
		Opener:       newOpener(cfg.Backend, logger),
		Analyzer:     analysis,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	format := cfg.Output.Format
	if format == "" {
		format = defaultFormat(os.Stdout)
	}
	opts := output.ViewOptions{
		Modifications: cfg.Output.IncludeModifications,
		Methods:       cfg.Output.IncludeMethods,
	}
	w, err := output.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	count := 0
	for c, err := range m.Traverse(ctx) {
		if err != nil {
			return err
		}
		view, err := output.NewCommitView(ctx, c, opts)
		if err != nil {
			return err
		}
		if err := w.Write(view); err != nil {
			return err
		}
		count++
	}
	logger.WithField("commits", count).Debug("Traversal finished")
	return w.Close()
}

func newOpener(backend string, logger logrus.FieldLogger) repository.Opener {
	if backend == config.BackendGoGit {
		return repository.NewGoGitOpener(logger)
	}
	return repository.NewCLIOpener(logger)
}

func defaultFormat(out *os.File) string {
	if term.IsTerminal(int(out.Fd())) {
		return config.FormatTable
	}
	return config.FormatJSONL
}
