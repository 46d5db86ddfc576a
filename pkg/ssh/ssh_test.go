package ssh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kevinburke/ssh_config"
)

const sampleSSHConfig = `
# comment
Host web*
    User deploy
    Port 2222

Host web1 !web2
    HostName 10.0.0.11
    User ops
    IdentityFile /keys/web1

Host *.lan
    HostName %h.example.com
    IdentityFile /keys/%r@%h

Host *
    User fallback
    Port=22
`

func decodeSSHConfig(t *testing.T, content string) *ssh_config.Config {
	t.Helper()
	cfg, err := ssh_config.Decode(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestLookupSSHConfigFirstValueWins(t *testing.T) {
	cfg := decodeSSHConfig(t, sampleSSHConfig)

	web1 := lookupSSHConfig(cfg, HostSpec{Address: "web1"})
	if web1.User != "deploy" || web1.Port != 2222 || web1.HostName != "10.0.0.11" || web1.KeyPath != "/keys/web1" {
		t.Errorf("unexpected web1 entry %+v", web1)
	}

	// web2 is excluded from the second block.
	web2 := lookupSSHConfig(cfg, HostSpec{Address: "web2"})
	if web2.HostName != "" || web2.User != "deploy" {
		t.Errorf("unexpected web2 entry %+v", web2)
	}

	db := lookupSSHConfig(cfg, HostSpec{Address: "db1"})
	if db.User != "fallback" || db.Port != 22 {
		t.Errorf("unexpected db1 entry %+v", db)
	}

	if got := lookupSSHConfig(nil, HostSpec{Address: "web1"}); got != (SSHConfigEntry{}) {
		t.Errorf("expected empty entry without a config, got %+v", got)
	}
}

func TestLookupSSHConfigTokens(t *testing.T) {
	cfg := decodeSSHConfig(t, sampleSSHConfig)

	got := lookupSSHConfig(cfg, HostSpec{Address: "db.lan", User: "alice", UserSet: true})
	if got.HostName != "db.lan.example.com" {
		t.Errorf("HostName = %q", got.HostName)
	}
	if got.KeyPath != "/keys/alice@db.lan.example.com" {
		t.Errorf("KeyPath = %q", got.KeyPath)
	}

	// Without an explicit user, %r is the user from the config.
	got = lookupSSHConfig(cfg, HostSpec{Address: "db.lan", User: "local"})
	if got.KeyPath != "/keys/fallback@db.lan.example.com" {
		t.Errorf("KeyPath = %q", got.KeyPath)
	}
}

func TestExpandTokens(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"%h", "web1"},
		{"%r@%h:100%%", "ops@web1:100%"},
		{"%C stays", "%C stays"},
		{"trailing%", "trailing%"},
	}
	for _, tt := range tests {
		if got := expandTokens(tt.in, "web1", "ops"); got != tt.want {
			t.Errorf("expandTokens(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSSHConfigCacheInclude(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.conf")
	if err := os.WriteFile(extra, []byte("Host db1\n    HostName 10.0.0.21\n    Port 2200\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config")
	if err := os.WriteFile(cfgPath, []byte("Include "+extra+"\n\nHost *\n    User fallback\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := &sshConfigCache{path: cfgPath}
	got := lookupSSHConfig(cache.load(), HostSpec{Address: "db1"})
	if got.HostName != "10.0.0.21" || got.Port != 2200 || got.User != "fallback" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestSSHConfigCacheIgnoresUnparsableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("Match host web1\n    User ops\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := &sshConfigCache{path: path}
	if cfg := cache.load(); cfg != nil {
		t.Errorf("expected the file to be ignored, got %v", cfg)
	}

	missing := &sshConfigCache{path: filepath.Join(t.TempDir(), "nope")}
	if cfg := missing.load(); cfg != nil {
		t.Errorf("expected nil config for a missing file, got %v", cfg)
	}
}

func TestMergeSSHConfig(t *testing.T) {
	entry := SSHConfigEntry{HostName: "10.0.0.11", User: "ops", Port: 2222, KeyPath: "/keys/web1"}

	got := mergeSSHConfig(HostSpec{Address: "web1", User: "alice", UserSet: true}, entry)
	if got.Address != "10.0.0.11" || got.User != "alice" || got.Port != 2222 || got.KeyPath != "/keys/web1" {
		t.Errorf("unexpected merge result %+v", got)
	}

	got = mergeSSHConfig(HostSpec{Address: "192.168.0.9", User: "local"}, entry)
	if got.Address != "192.168.0.9" {
		t.Errorf("IP address must not be replaced, got %s", got.Address)
	}
	if got.User != "ops" {
		t.Errorf("unset user should come from ssh config, got %s", got.User)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{".", "'.'"},
		{"/var/log/app.log", "'/var/log/app.log'"},
		{"it's.log", `'it'\''s.log'`},
		{"$(rm -rf /)", "'$(rm -rf /)'"},
	}

	for _, tt := range tests {
		if got := ShellQuote(tt.input); got != tt.expected {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadHostsFile(t *testing.T) {
	path := t.TempDir() + "/hosts"
	content := "127.0.0.1 localhost\n# comment\n10.0.0.5 web5 web5.lan # trailing\n::1 ip6-localhost\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m := loadHostsFile(path)
	if m["web5"] != "10.0.0.5" || m["web5.lan"] != "10.0.0.5" {
		t.Errorf("unexpected hosts map %v", m)
	}
	if _, ok := m["ip6-localhost"]; ok {
		t.Error("IPv6 entries should be skipped")
	}
	if _, ok := m["trailing"]; ok {
		t.Error("comments should be skipped")
	}
}
