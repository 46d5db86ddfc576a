package search

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	logssh "github.com/liliang-cn/logparser/pkg/ssh"
)

var logFileRE = regexp.MustCompile(`\.log$`)

// ListCommand returns the remote command listing the candidate files under
// dir.
func ListCommand(dir string) string {
	if dir == "" {
		dir = "."
	}
	return fmt.Sprintf("find %s -type f -name '*.log'", logssh.ShellQuote(dir))
}

// ListFiles returns the paths under dir whose names end in ".log", in the
// order the remote side printed them. A non-zero exit, as find gives when
// part of the tree is unreadable, is returned as a *RemoteCommandError
// together with the files that were listed.
func ListFiles(ctx context.Context, sess Session, dir string) ([]string, error) {
	cmd := ListCommand(dir)
	res, err := sess.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", cmd, err)
	}

	files := []string{}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if logFileRE.MatchString(line) {
			files = append(files, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		return files, &RemoteCommandError{
			Cmd:      cmd,
			ExitCode: res.ExitCode,
			Stderr:   string(res.Stderr),
		}
	}
	return files, nil
}
