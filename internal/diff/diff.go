// Package diff turns unified-diff hunks into line-attributed additions and
// deletions.
package diff

import (
	"strconv"
	"strings"
	"unicode"
)

const noNewlineMarker = `\ No newline at end of file`

// Line is one changed line: its number in the post-image (additions) or
// pre-image (deletions) and its text without the +/- marker.
type Line struct {
	Number int    `json:"line"`
	Text   string `json:"text"`
}

// Parsed holds the changed lines of a patch, in patch order.
type Parsed struct {
	Added   []Line `json:"added"`
	Deleted []Line `json:"deleted"`
}

// Parse attributes every added and deleted line of a unified diff to a line
// number. Both cursors advance on every line and are corrected afterwards:
// a deletion does not move the new-file cursor, an addition does not move the
// old-file cursor, and the no-newline marker moves neither.
func Parse(patch string) Parsed {
	parsed := Parsed{
		Added:   []Line{},
		Deleted: []Line{},
	}

	delLine, addLine := 0, 0
	inHunk := false
	for _, line := range strings.Split(patch, "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		delLine++
		addLine++

		if strings.HasPrefix(line, "@@") {
			delLine, addLine = hunkStarts(line)
			inHunk = true
		}

		switch {
		case !inHunk && isFileHeader(line):
		case strings.HasPrefix(line, "-"):
			parsed.Deleted = append(parsed.Deleted, Line{Number: delLine, Text: line[1:]})
			addLine--
		case strings.HasPrefix(line, "+"):
			parsed.Added = append(parsed.Added, Line{Number: addLine, Text: line[1:]})
			delLine--
		case line == noNewlineMarker:
			delLine--
			addLine--
		}
	}

	return parsed
}

// hunkStarts returns the old and new start lines of a hunk header minus one.
// Format: @@ -oldStart[,oldLen] +newStart[,newLen] @@
func hunkStarts(header string) (int, int) {
	fields := strings.Fields(header)
	if len(fields) < 3 {
		return 0, 0
	}
	return rangeStart(fields[1], "-") - 1, rangeStart(fields[2], "+") - 1
}

func rangeStart(field, sign string) int {
	field = strings.TrimPrefix(field, sign)
	if idx := strings.Index(field, ","); idx >= 0 {
		field = field[:idx]
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0
	}
	return n
}

// isFileHeader matches the ---/+++ lines that precede the first hunk. Inside a
// hunk the same prefixes are content lines starting with -- or ++.
func isFileHeader(line string) bool {
	return strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++")
}

// CountChanges counts the added and deleted lines in a diff, ignoring the
// +++/--- file headers before the first hunk.
func CountChanges(patch string) (added, removed int) {
	if patch == "" {
		return 0, 0
	}

	inHunk := false
	for _, line := range strings.Split(strings.ReplaceAll(patch, "\r", ""), "\n") {
		if len(line) == 0 {
			continue
		}
		if strings.HasPrefix(line, "@@") {
			inHunk = true
			continue
		}
		if !inHunk && isFileHeader(line) {
			continue
		}

		switch line[0] {
		case '+':
			added++
		case '-':
			removed++
		}
	}

	return added, removed
}

// Lines returns the set of line numbers in ls.
func Lines(ls []Line) map[int]struct{} {
	set := make(map[int]struct{}, len(ls))
	for _, l := range ls {
		set[l.Number] = struct{}{}
	}
	return set
}
