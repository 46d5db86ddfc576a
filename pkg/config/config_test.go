package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeFile(t, "config.toml", `
[ssh]
user = "ops"
port = 2222
timeout = "5s"
strict_host_key = true

[search]
dir = "/var/log"

[log]
level = "warn"
`)

	s, err := Load(path)
	require.NoError(t, err)

	f := s.File()
	assert.Equal(t, "ops", f.SSH.User)
	assert.Equal(t, 2222, f.SSH.Port)
	assert.True(t, f.SSH.StrictHostKey)
	assert.Equal(t, "/var/log", f.Search.Dir)
	assert.Equal(t, "warn", f.Log.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 1, f.Search.Parallel)
	assert.Equal(t, "~/.ssh/known_hosts", f.SSH.KnownHostsPath)
	assert.Equal(t, 100, f.Log.MaxSizeMB)

	d, err := f.DialTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config", cfgErr.Field)
}

func TestLoadInvalid(t *testing.T) {
	path := writeFile(t, "config.toml", "[ssh\nuser=")
	_, err := Load(path)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuildDefaults(t *testing.T) {
	opts, err := Build(Flags{Term: "fail"}, nil, strings.NewReader("web1\n"))
	require.NoError(t, err)

	assert.Equal(t, "fail", opts.Term)
	assert.Equal(t, CurrentUser(), opts.User)
	assert.False(t, opts.UserSet)
	assert.Equal(t, ".", opts.Dir)
	assert.Equal(t, 1, opts.Parallel)
	assert.Equal(t, 22, opts.SSH.Port)
	assert.Equal(t, 30*time.Second, opts.SSH.Timeout)
	assert.True(t, opts.FromStdin)
	assert.Equal(t, "<stdin>", opts.HostsName)
	assert.False(t, opts.Execute)
	assert.Equal(t, "info", opts.Log.Level)
}

func TestBuildFlagsOverrideFile(t *testing.T) {
	file := Defaults()
	file.SSH.User = "fromfile"
	file.SSH.Port = 2200
	file.Search.Dir = "/srv"
	file.Search.Parallel = 8

	servers := writeFile(t, "hosts.txt", "web1\nweb2\n")
	opts, err := Build(Flags{
		Term:     "x",
		Servers:  servers,
		User:     "alice",
		Parallel: 2,
		Verbose:  true,
	}, file, nil)
	require.NoError(t, err)
	defer opts.Hosts.Close()

	assert.Equal(t, "alice", opts.User)
	assert.True(t, opts.UserSet)
	assert.Equal(t, 2200, opts.SSH.Port)
	assert.Equal(t, "/srv", opts.Dir)
	assert.Equal(t, 2, opts.Parallel)
	assert.Equal(t, servers, opts.HostsName)
	assert.False(t, opts.FromStdin)
	assert.Equal(t, "debug", opts.Log.Level, "verbose implies debug logging")
}

func TestBuildInvalidPattern(t *testing.T) {
	_, err := Build(Flags{Term: "fail("}, nil, strings.NewReader(""))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "search term", cfgErr.Field)
}

func TestBuildUnreadableServers(t *testing.T) {
	_, err := Build(Flags{Term: "x", Servers: filepath.Join(t.TempDir(), "missing")}, nil, nil)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "servers", cfgErr.Field)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCompilePatternIgnoreCase(t *testing.T) {
	lines := []string{"an error here", "Error: boom", "ERROR", "no problem"}

	exact, err := CompilePattern("ERROR", false)
	require.NoError(t, err)
	folded, err := CompilePattern("ERROR", true)
	require.NoError(t, err)

	var exactHits, foldedHits int
	for _, l := range lines {
		if exact.MatchString(l) {
			exactHits++
		}
		if folded.MatchString(l) {
			foldedHits++
		}
	}
	assert.Equal(t, 1, exactHits)
	assert.Equal(t, 3, foldedHits)
}

func TestEmptyPatternMatchesEverything(t *testing.T) {
	re, err := CompilePattern("", false)
	require.NoError(t, err)
	assert.True(t, re.MatchString(""))
	assert.True(t, re.MatchString("anything"))
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"/tmp/file", "/tmp/file"},
		{"~/.ssh/id_rsa", filepath.Join(home, ".ssh", "id_rsa")},
		{"", ""},
	}

	for _, tt := range tests {
		result := ExpandPath(tt.input)
		if result != tt.expected {
			t.Errorf("ExpandPath(%s): expected %s, got %s", tt.input, tt.expected, result)
		}
	}
}
