package search

import (
	"bufio"
	"context"

	"github.com/liliang-cn/logparser/pkg/report"
)

// maxLineSize bounds a single log line. Longer lines fail the file.
const maxLineSize = 4 * 1024 * 1024

// ScanFile streams the remote file at path and returns the lines matching m,
// numbered from 1, in file order. onMatch, if set, is called for each match
// as it is found. The returned slice is empty, not nil, when nothing matched.
func ScanFile(ctx context.Context, sess Session, path string, m *Matcher, onMatch func(report.Match)) (matches []report.Match, err error) {
	f, err := sess.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			matches, err = nil, cerr
		}
	}()

	matches = []report.Match{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !m.Match(line) {
			continue
		}
		match := report.Match{Line: lineNum, Text: line}
		matches = append(matches, match)
		if onMatch != nil {
			onMatch(match)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
