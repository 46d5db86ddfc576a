// Package search runs a log search across a list of remote hosts.
//
// For every host read from the feed, the Searcher connects, lists the
// candidate ".log" files under the configured directory and, in execute
// mode, streams each file and records the lines matching the pattern.
// Hosts are searched one at a time by default. With a parallelism above
// one they are fanned out, but progress output and the report are still
// assembled in feed order.
//
// Example Usage:
//
//	s := search.New(transport, "ERROR", regexp.MustCompile("ERROR"), search.Options{
//	    User:    "ops",
//	    Dir:     "/var/log",
//	    Execute: true,
//	})
//	rep, err := s.Run(ctx, hostfeed.FromList([]string{"web1", "web2"}))
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/logparser/pkg/hostfeed"
	"github.com/liliang-cn/logparser/pkg/logger"
	"github.com/liliang-cn/logparser/pkg/report"
)

// Options controls a search run.
type Options struct {
	// User is the remote user; it is also shown in progress output.
	User string
	// Dir is the remote base directory. Empty means ".".
	Dir string
	// Execute enables reading files. Without it only the listing is done.
	Execute bool
	// Verbose echoes commands, file lists and every matching line.
	Verbose bool
	// Parallel is the number of hosts searched at once. Values below 1
	// mean 1.
	Parallel int
}

// Stage is the step a host is at.
type Stage int

const (
	StageConnecting Stage = iota
	StageListing
	StageReading
	StageDone
	StageUnreachable
)

func (s Stage) String() string {
	switch s {
	case StageConnecting:
		return "connecting"
	case StageListing:
		return "listing"
	case StageReading:
		return "reading"
	case StageDone:
		return "done"
	case StageUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Progress describes the state of one host.
type Progress struct {
	Host      string
	Stage     Stage
	Files     int
	FilesRead int
	Matches   int
	Err       error
}

// ProgressFunc receives progress updates. With Parallel above one it is
// called from several goroutines.
type ProgressFunc func(Progress)

// Searcher searches hosts for lines matching a pattern.
type Searcher struct {
	transport  Transport
	term       string
	matcher    *Matcher
	opts       Options
	out        io.Writer
	logger     *logger.Logger
	onProgress ProgressFunc
}

// New creates a Searcher. term is the text recorded in the report; pattern
// is its compiled form.
func New(transport Transport, term string, pattern *regexp.Regexp, opts Options) *Searcher {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Searcher{
		transport: transport,
		term:      term,
		matcher:   NewMatcher(pattern),
		opts:      opts,
		out:       os.Stdout,
		logger:    logger.Default(),
	}
}

// SetOutput sets where progress output is written.
func (s *Searcher) SetOutput(w io.Writer) {
	s.out = w
}

// SetLogger sets custom logger
func (s *Searcher) SetLogger(l *logger.Logger) {
	s.logger = l
}

// OnProgress registers fn to receive progress updates.
func (s *Searcher) OnProgress(fn ProgressFunc) {
	s.onProgress = fn
}

// Run searches every host of feed and returns the report. If ctx is
// cancelled the report built so far is returned together with ctx.Err().
// A host that fails never stops the run.
func (s *Searcher) Run(ctx context.Context, feed *hostfeed.Feed) (*report.Report, error) {
	rep := report.New()

	var err error
	if s.opts.Parallel > 1 {
		err = s.runParallel(ctx, feed, rep)
	} else {
		err = s.runSequential(ctx, feed, rep)
	}
	if err != nil {
		return rep, err
	}

	if err := feed.Err(); err != nil {
		return rep, fmt.Errorf("failed to read host list: %w", err)
	}
	return rep, nil
}

func (s *Searcher) runSequential(ctx context.Context, feed *hostfeed.Feed, rep *report.Report) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok := feed.NextEntry()
		if !ok {
			return nil
		}
		res, err := s.searchHost(ctx, entry, s.out)
		if err != nil {
			return err
		}
		rep.Merge(s.term, res)
	}
}

// hostRun is one host of a parallel run. Its output is buffered until every
// host before it has been flushed.
type hostRun struct {
	entry hostfeed.Entry
	buf   bytes.Buffer
	res   *report.HostResult
	err   error
	done  chan struct{}
}

func (s *Searcher) runParallel(ctx context.Context, feed *hostfeed.Feed, rep *report.Report) error {
	entries := feed.Entries()
	s.logger.Debug("searching %d hosts, %d at a time", len(entries), s.opts.Parallel)

	runs := make([]*hostRun, len(entries))
	for i, e := range entries {
		runs[i] = &hostRun{entry: e, done: make(chan struct{})}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Parallel)

	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for _, r := range runs {
			g.Go(func() error {
				defer close(r.done)
				if err := ctx.Err(); err != nil {
					r.err = err
					return nil
				}
				r.res, r.err = s.searchHost(ctx, r.entry, &r.buf)
				return nil
			})
		}
		g.Wait()
	}()

	var firstErr error
	for _, r := range runs {
		<-r.done
		if firstErr != nil {
			continue
		}
		if _, err := s.out.Write(r.buf.Bytes()); err != nil {
			s.logger.Warn("failed to write output: %v", err)
		}
		if r.err != nil {
			firstErr = r.err
			continue
		}
		rep.Merge(s.term, r.res)
	}
	<-launched

	return firstErr
}

// searchHost lists and, in execute mode, scans the files of one host,
// writing progress to w. The only error returned is the cancellation of
// ctx; every other failure is recorded in the result.
func (s *Searcher) searchHost(ctx context.Context, entry hostfeed.Entry, w io.Writer) (*report.HostResult, error) {
	host := entry.Host
	res := report.NewHostResult(host)
	who := s.opts.User + "@" + host
	log := s.logger.WithField("host", host)

	cmd := ListCommand(s.opts.Dir)
	if s.opts.Verbose {
		fmt.Fprintln(w, entry.Line)
	}
	fmt.Fprintf(w, "------ %s ------\n", who)
	if s.opts.Verbose {
		fmt.Fprintf(w, "$ %s\n", cmd)
	}
	s.progress(Progress{Host: host, Stage: StageConnecting})

	sess, err := s.transport.Dial(ctx, host, s.opts.User)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return s.unreachable(res, log, &HostUnreachableError{Host: host, Err: err}), nil
	}
	defer sess.Close()

	s.progress(Progress{Host: host, Stage: StageListing})

	files, err := ListFiles(ctx, sess, s.opts.Dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var cmdErr *RemoteCommandError
		if !errors.As(err, &cmdErr) {
			return s.unreachable(res, log, &HostUnreachableError{Host: host, Err: err}), nil
		}
		cmdErr.Host = host
		log.Debug("listing incomplete, %d files found: %v", len(files), cmdErr)
	}

	fmt.Fprintf(w, ">> There are %d files\n", len(files))
	if s.opts.Verbose {
		for _, f := range files {
			fmt.Fprintf(w, "\t%s\n", f)
		}
	}

	progress := Progress{Host: host, Stage: StageReading, Files: len(files)}
	if !s.opts.Execute {
		progress.Stage = StageDone
		s.progress(progress)
		return res, nil
	}
	s.progress(progress)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fmt.Fprintf(w, "\n\t####### Scanning file:%s on %s ######\n", path, who)
		matches, err := ScanFile(ctx, sess, path, s.matcher, func(m report.Match) {
			if s.opts.Verbose {
				fmt.Fprintf(w, "\t!! Found occurence on line %d: %s\n", m.Line, m.Text)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithField("path", path).Warn("%v", &FileReadError{Host: host, Path: path, Err: err})
			continue
		}

		res.AddFile(path, matches)
		progress.FilesRead++
		progress.Matches += len(matches)
		s.progress(progress)
	}

	progress.Stage = StageDone
	s.progress(progress)
	log.Debug("%d files read, %d matching lines", len(res.Files), res.MatchCount())
	return res, nil
}

func (s *Searcher) unreachable(res *report.HostResult, log *logger.Entry, err *HostUnreachableError) *report.HostResult {
	log.Warn("%v", err)
	res.Unreachable = true
	s.progress(Progress{Host: res.Host, Stage: StageUnreachable, Err: err})
	return res
}

func (s *Searcher) progress(p Progress) {
	if s.onProgress != nil {
		s.onProgress(p)
	}
}
