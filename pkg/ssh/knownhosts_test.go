package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func newTestKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return sshPub
}

func TestKnownHostsVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	sshPub := newTestKey(t)

	// 1. Auto-add
	v, err := NewKnownHostsVerifier(path, true)
	if err != nil {
		t.Fatal(err)
	}

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}

	if err := v.Verify("web1:22", addr, sshPub); err != nil {
		t.Errorf("Auto-add failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "web1,127.0.0.1 ssh-ed25519 ") {
		t.Errorf("unexpected known_hosts line %q", data)
	}

	// 2. Already known, by name or by address
	if err := v.Verify("web1:22", addr, sshPub); err != nil {
		t.Errorf("Verification failed for existing key: %v", err)
	}
	if err := v.Verify("127.0.0.1:22", addr, sshPub); err != nil {
		t.Errorf("Verification by address failed: %v", err)
	}

	// 3. Changed key
	err = v.Verify("web1:22", addr, newTestKey(t))
	if !errors.Is(err, ErrHostKeyChanged) {
		t.Errorf("Expected ErrHostKeyChanged, got %v", err)
	}

	// 4. Reject unknown when auto-add is disabled; keys persisted by the
	// first verifier are still accepted.
	v2, err := NewKnownHostsVerifier(path, false)
	if err != nil {
		t.Fatal(err)
	}
	err = v2.Verify("db1:22", &net.TCPAddr{IP: net.ParseIP("192.168.1.100"), Port: 22}, sshPub)
	if !errors.Is(err, ErrHostKeyUnknown) {
		t.Errorf("Expected ErrHostKeyUnknown, got %v", err)
	}
	if err := v2.Verify("web1:22", addr, sshPub); err != nil {
		t.Errorf("Reloaded verifier rejected known key: %v", err)
	}
}

func TestKnownHostsNonStandardPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	key := newTestKey(t)

	v, err := NewKnownHostsVerifier(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Verify("web1:2222", &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2222}, key); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "[web1]:2222,[10.0.0.5]:2222 ") {
		t.Errorf("unexpected known_hosts line %q", data)
	}
}

func writeKnownHosts(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestKnownHostsHashedEntry(t *testing.T) {
	trusted := newTestKey(t)
	path := writeKnownHosts(t, knownhosts.Line([]string{knownhosts.HashHostname("web1")}, trusted))
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 22}

	strict, err := NewKnownHostsVerifier(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := strict.Verify("web1:22", addr, trusted); err != nil {
		t.Errorf("hashed entry with the trusted key was rejected: %v", err)
	}

	before, _ := os.ReadFile(path)
	auto, err := NewKnownHostsVerifier(path, true)
	if err != nil {
		t.Fatal(err)
	}
	err = auto.Verify("web1:22", addr, newTestKey(t))
	if !errors.Is(err, ErrHostKeyChanged) {
		t.Errorf("Expected ErrHostKeyChanged, got %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Errorf("known_hosts changed after a key mismatch: %q", after)
	}
}

func TestKnownHostsRevokedKey(t *testing.T) {
	key := newTestKey(t)
	keyText := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	path := writeKnownHosts(t, "@revoked * "+keyText)

	v, err := NewKnownHostsVerifier(path, true)
	if err != nil {
		t.Fatal(err)
	}
	err = v.Verify("web1:22", &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 22}, key)
	if err == nil {
		t.Fatal("revoked key was accepted")
	}
	if errors.Is(err, ErrHostKeyUnknown) || errors.Is(err, ErrHostKeyChanged) {
		t.Errorf("unexpected error kind %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "\n") != 1 {
		t.Errorf("revoked key must not be added, file is %q", data)
	}
}

func TestKnownHostsHostKeyAlgorithms(t *testing.T) {
	key := newTestKey(t)
	path := writeKnownHosts(t, knownhosts.Line([]string{knownhosts.HashHostname("[web1]:2222")}, key))

	v, err := NewKnownHostsVerifier(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.HostKeyAlgorithms("web1:2222"); len(got) != 1 || got[0] != ssh.KeyAlgoED25519 {
		t.Errorf("unexpected algorithms %v", got)
	}
	if got := v.HostKeyAlgorithms("web2:22"); got != nil {
		t.Errorf("expected nil for an unknown host, got %v", got)
	}

	missing, err := NewKnownHostsVerifier(filepath.Join(t.TempDir(), "none"), true)
	if err != nil {
		t.Fatal(err)
	}
	if got := missing.HostKeyAlgorithms("web1:22"); got != nil {
		t.Errorf("expected nil without a known_hosts file, got %v", got)
	}

	rsa := algorithmsForKeyType(ssh.KeyAlgoRSA)
	if len(rsa) != 3 || rsa[0] != ssh.KeyAlgoRSASHA512 {
		t.Errorf("unexpected rsa algorithms %v", rsa)
	}
}
