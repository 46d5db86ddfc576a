package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCreatesIntermediateLevels(t *testing.T) {
	r := New()
	r.AddMatch("fail", "web1", "/var/log/app.log", Match{Line: 3, Text: "request fail"})

	assert.Equal(t, []string{"fail"}, r.Terms())
	assert.Equal(t, []string{"web1"}, r.Hosts("fail"))
	assert.Equal(t, []string{"/var/log/app.log"}, r.Files("fail", "web1"))

	ms, ok := r.Matches("fail", "web1", "/var/log/app.log")
	require.True(t, ok)
	assert.Equal(t, []Match{{Line: 3, Text: "request fail"}}, ms)
}

func TestAddFileKeepsEmptyEntry(t *testing.T) {
	r := New()
	r.AddFile("fail", "web1", "quiet.log")

	ms, ok := r.Matches("fail", "web1", "quiet.log")
	require.True(t, ok)
	assert.Empty(t, ms)

	s := r.Summary()
	assert.Equal(t, 1, s.Files)
	assert.Equal(t, 0, s.Lines)

	// Adding the file again must not drop matches recorded in between.
	r.AddMatch("fail", "web1", "quiet.log", Match{Line: 1, Text: "fail"})
	r.AddFile("fail", "web1", "quiet.log")
	ms, _ = r.Matches("fail", "web1", "quiet.log")
	assert.Len(t, ms, 1)
}

func TestMergeHostResult(t *testing.T) {
	r := New()

	web1 := NewHostResult("web1")
	web1.AddFile("a.log", []Match{{1, "fail one"}, {4, "fail two"}})
	web1.AddFile("b.log", nil)
	r.Merge("fail", web1)

	r.Merge("fail", NewHostResult("web2"))

	down := NewHostResult("web3")
	down.Unreachable = true
	r.Merge("fail", down)

	s := r.Summary()
	assert.Equal(t, Summary{Terms: 1, Hosts: 2, Files: 2, Lines: 2, Unreachable: 1}, s)
	assert.Equal(t, []string{"web3"}, r.Unreachable())
	assert.Equal(t, 2, web1.MatchCount())

	ms, ok := r.Matches("fail", "web1", "b.log")
	require.True(t, ok)
	assert.NotNil(t, ms)
	assert.Empty(t, ms)
}

func TestSummaryEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, New().Summary())
}

func TestPrint(t *testing.T) {
	r := New()
	h := NewHostResult("web1")
	h.AddFile("app.log", []Match{{2, "ERROR fail"}})
	h.AddFile("empty.log", nil)
	r.Merge("fail", h)
	r.AddUnreachable("web9")

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, r, "fail", false))
	out := buf.String()

	assert.Contains(t, out, "==================== Report ====================")
	assert.Contains(t, out, "Regular Expression: fail\n")
	assert.Contains(t, out, "Number of Expressions: 1\n")
	assert.Contains(t, out, "Number of Hosts Searched: 1\n")
	assert.Contains(t, out, "Number of Log Files Searched: 2\n")
	assert.Contains(t, out, "Number of lines where above condition was met: 1\n")
	assert.Contains(t, out, "Number of Unreachable Hosts: 1\n")
	assert.NotContains(t, out, "2: ERROR fail")
	assert.NotContains(t, out, "\033[", "output to a buffer must be plain")

	buf.Reset()
	require.NoError(t, Print(&buf, r, "fail", true))
	out = buf.String()
	assert.Contains(t, out, "  web1\n")
	assert.Contains(t, out, "    app.log (1)\n")
	assert.Contains(t, out, "      2: ERROR fail\n")
	assert.Contains(t, out, "    empty.log (0)\n")
	assert.True(t, strings.HasSuffix(out, "unreachable\n  web9\n"))
}
