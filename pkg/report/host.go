package report

// FileResult is the outcome of reading one file on one host.
type FileResult struct {
	Path    string
	Matches []Match
}

// HostResult collects what one host contributed to a run. It is built by a
// single worker and merged into the shared Report afterwards.
type HostResult struct {
	Host        string
	Unreachable bool
	Files       []FileResult
}

// NewHostResult returns an empty result for host.
func NewHostResult(host string) *HostResult {
	return &HostResult{Host: host}
}

// AddFile appends a file that was read to the end.
func (h *HostResult) AddFile(path string, matches []Match) {
	if matches == nil {
		matches = []Match{}
	}
	h.Files = append(h.Files, FileResult{Path: path, Matches: matches})
}

// MatchCount returns the number of matching lines across all files.
func (h *HostResult) MatchCount() int {
	n := 0
	for _, f := range h.Files {
		n += len(f.Matches)
	}
	return n
}
