// Package hostfeed reads the list of hosts to search.
//
// The feed is plain text, one host per line. Only the first
// whitespace-delimited token of a line is used. The feed ends at
// end-of-stream or at the first empty line, whichever comes first: hosts
// listed after an empty line are never returned.
package hostfeed

import (
	"bufio"
	"io"
	"strings"
)

// Feed yields hosts one line at a time.
type Feed struct {
	scanner *bufio.Scanner
	done    bool
	err     error
}

// New returns a feed reading from r.
func New(r io.Reader) *Feed {
	return &Feed{scanner: bufio.NewScanner(r)}
}

// FromList returns a feed over an already collected host list.
func FromList(hosts []string) *Feed {
	return New(strings.NewReader(strings.Join(hosts, "\n")))
}

// Entry is one host of the feed together with the line it was read from.
type Entry struct {
	Host string
	Line string
}

// Next returns the next host. ok is false once the feed is exhausted.
// Lines holding only whitespace are skipped.
func (f *Feed) Next() (host string, ok bool) {
	e, ok := f.NextEntry()
	return e.Host, ok
}

// NextEntry is like Next but also returns the raw line.
func (f *Feed) NextEntry() (Entry, bool) {
	for !f.done {
		if !f.scanner.Scan() {
			f.err = f.scanner.Err()
			f.done = true
			break
		}

		line := strings.TrimSuffix(f.scanner.Text(), "\r")
		if line == "" {
			// NOTE: an empty line ends the whole feed, even when more
			// hosts follow. This is likely a bug, but skipping the line
			// would change which hosts existing lists search.
			f.done = true
			break
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return Entry{Host: fields[0], Line: line}, true
	}
	return Entry{}, false
}

// All drains the feed and returns the remaining hosts in order.
func (f *Feed) All() []string {
	var hosts []string
	for {
		h, ok := f.Next()
		if !ok {
			return hosts
		}
		hosts = append(hosts, h)
	}
}

// Entries drains the feed and returns the remaining entries in order.
func (f *Feed) Entries() []Entry {
	var entries []Entry
	for {
		e, ok := f.NextEntry()
		if !ok {
			return entries
		}
		entries = append(entries, e)
	}
}

// Err returns the first read error, if any.
func (f *Feed) Err() error {
	return f.err
}
