package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	// ErrHostKeyUnknown is returned when the host key is not in known_hosts.
	ErrHostKeyUnknown = errors.New("host key unknown")
	// ErrHostKeyChanged is returned when the host key differs from known_hosts.
	ErrHostKeyChanged = errors.New("host key changed")
)

// KnownHostsVerifier handles host key verification using known_hosts file.
// Hashed entries and the @cert-authority and @revoked markers are honored.
type KnownHostsVerifier struct {
	knownHostsPath string
	db             ssh.HostKeyCallback // nil while the file does not exist
	autoAdd        bool                // Automatically add unknown host keys
	mu             sync.Mutex
}

// NewKnownHostsVerifier creates a verifier from known_hosts file.
//
// If autoAdd is true, unknown host keys will be automatically added to known_hosts.
// If autoAdd is false, connections to unknown hosts will be rejected.
// A changed key is rejected in both modes.
func NewKnownHostsVerifier(path string, autoAdd bool) (*KnownHostsVerifier, error) {
	v := &KnownHostsVerifier{
		knownHostsPath: expandKnownHostsPath(path),
		autoAdd:        autoAdd,
	}

	if err := v.load(); err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return v, nil
}

// load reads the known_hosts file. Callers hold mu, except during
// construction.
func (v *KnownHostsVerifier) load() error {
	db, err := knownhosts.New(v.knownHostsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			v.db = nil
			return nil
		}
		return err
	}
	v.db = db
	return nil
}

// Verify checks the host key against known_hosts. hostname is the
// host:port passed to the dialer.
func (v *KnownHostsVerifier) Verify(hostname string, remote net.Addr, key ssh.PublicKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	name := knownhosts.Normalize(hostname)

	if v.db != nil {
		err := v.db(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			// Revoked key or a malformed address.
			return fmt.Errorf("host key of %s rejected: %w", name, err)
		}
		if len(keyErr.Want) > 0 {
			want := keyErr.Want[0]
			return fmt.Errorf("%w: %s (trusted key at %s:%d)", ErrHostKeyChanged, name, want.Filename, want.Line)
		}
	}

	if !v.autoAdd {
		return fmt.Errorf("%w: %s", ErrHostKeyUnknown, name)
	}

	return v.add(hostCandidates(hostname, remote), key)
}

// HostKeyAlgorithms returns the host key algorithms matching the keys
// trusted for hostname, or nil when the host is unknown. Offering only
// these keeps a server with several key types from presenting one that
// known_hosts does not list.
func (v *KnownHostsVerifier) HostKeyAlgorithms(hostname string) []string {
	v.mu.Lock()
	db := v.db
	v.mu.Unlock()
	if db == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	err := db(hostname, &net.TCPAddr{IP: net.IPv4zero}, lookupKey{})
	if !errors.As(err, &keyErr) {
		return nil
	}

	var algos []string
	seen := make(map[string]bool)
	for _, known := range keyErr.Want {
		for _, algo := range algorithmsForKeyType(known.Key.Type()) {
			if !seen[algo] {
				seen[algo] = true
				algos = append(algos, algo)
			}
		}
	}
	return algos
}

func algorithmsForKeyType(keyType string) []string {
	if keyType == ssh.KeyAlgoRSA {
		return []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
	}
	return []string{keyType}
}

// lookupKey matches no known_hosts entry, so checking it returns every
// key trusted for a host.
type lookupKey struct{}

func (lookupKey) Type() string    { return "lookup" }
func (lookupKey) Marshal() []byte { return []byte("lookup") }
func (lookupKey) Verify([]byte, *ssh.Signature) error {
	return errors.New("lookup key cannot verify signatures")
}

// hostCandidates returns the normalized known_hosts names for a connection,
// hostname first.
func hostCandidates(hostname string, remote net.Addr) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		if addr == "" {
			return
		}
		n := knownhosts.Normalize(addr)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	add(hostname)
	if remote != nil {
		add(remote.String())
	}
	return out
}

// add records key for hosts in the known_hosts file and reloads it.
// Callers hold mu.
func (v *KnownHostsVerifier) add(hosts []string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(v.knownHostsPath), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	f, err := os.OpenFile(v.knownHostsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}

	if _, err := f.WriteString(knownhosts.Line(hosts, key) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write to known_hosts: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write to known_hosts: %w", err)
	}

	return v.load()
}

// HostKeyCallback returns an ssh.HostKeyCallback for use with ssh.ClientConfig.
func (v *KnownHostsVerifier) HostKeyCallback() ssh.HostKeyCallback {
	return ssh.HostKeyCallback(v.Verify)
}

// expandKnownHostsPath expands ~ in path.
func expandKnownHostsPath(path string) string {
	if path == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".ssh", "known_hosts")
	}
	return expandPath(path)
}
