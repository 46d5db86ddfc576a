// Package report holds the search results of one run: for every search
// term, the hosts that were searched, the log files read on each host, and
// the matching lines found in each file.
package report

import (
	"sort"
	"sync"
)

// Match is one line that satisfied the search pattern.
type Match struct {
	// Line is the 1-indexed line number within the file.
	Line int
	// Text is the line as read, without its trailing newline.
	Text string
}

// Files maps a remote file path to the matches found in it. A file with no
// matches is present with an empty slice.
type Files map[string][]Match

// Hosts maps a host to the files read on it.
type Hosts map[string]Files

// Summary holds the aggregate counts of a Report.
type Summary struct {
	Terms       int
	Hosts       int
	Files       int
	Lines       int
	Unreachable int
}

// Report is the term → host → file → matches structure built during a run.
// It is safe for concurrent use, though the search pipeline only ever writes
// to it from a single goroutine.
type Report struct {
	mu          sync.RWMutex
	terms       map[string]Hosts
	unreachable []string
}

// New returns an empty report.
func New() *Report {
	return &Report{terms: make(map[string]Hosts)}
}

func (r *Report) host(term, host string) Files {
	hosts, ok := r.terms[term]
	if !ok {
		hosts = make(Hosts)
		r.terms[term] = hosts
	}
	files, ok := hosts[host]
	if !ok {
		files = make(Files)
		hosts[host] = files
	}
	return files
}

// AddHost records that host was searched for term.
func (r *Report) AddHost(term, host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host(term, host)
}

// AddFile records that file was read on host, creating the host entry if
// needed. Existing matches for the file are kept.
func (r *Report) AddFile(term, host, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := r.host(term, host)
	if _, ok := files[file]; !ok {
		files[file] = []Match{}
	}
}

// AddMatch appends m to the matches of file on host.
func (r *Report) AddMatch(term, host, file string, m Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := r.host(term, host)
	files[file] = append(files[file], m)
}

// AddUnreachable records a host that could not be searched. Unreachable
// hosts are not counted as searched.
func (r *Report) AddUnreachable(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = append(r.unreachable, host)
}

// Merge adds the isolated result of one host.
func (r *Report) Merge(term string, res *HostResult) {
	if res == nil {
		return
	}
	if res.Unreachable {
		r.AddUnreachable(res.Host)
		return
	}

	r.AddHost(term, res.Host)
	for _, f := range res.Files {
		r.AddFile(term, res.Host, f.Path)
		for _, m := range f.Matches {
			r.AddMatch(term, res.Host, f.Path, m)
		}
	}
}

// Terms returns the recorded search terms, sorted.
func (r *Report) Terms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.terms)
}

// Hosts returns the hosts recorded for term, sorted.
func (r *Report) Hosts(term string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.terms[term])
}

// Files returns the files recorded for host under term, sorted.
func (r *Report) Files(term, host string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.terms[term][host])
}

// Matches returns a copy of the matches recorded for file, and whether the
// file is present at all.
func (r *Report) Matches(term, host, file string) ([]Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.terms[term][host][file]
	if !ok {
		return nil, false
	}
	out := make([]Match, len(ms))
	copy(out, ms)
	return out, true
}

// Unreachable returns the hosts that could not be searched, in the order
// they were recorded.
func (r *Report) Unreachable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.unreachable))
	copy(out, r.unreachable)
	return out
}

// Summary walks the report and counts terms, hosts, files and lines.
func (r *Report) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Terms:       len(r.terms),
		Unreachable: len(r.unreachable),
	}
	for _, hosts := range r.terms {
		s.Hosts += len(hosts)
		for _, files := range hosts {
			s.Files += len(files)
			for _, ms := range files {
				s.Lines += len(ms)
			}
		}
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
