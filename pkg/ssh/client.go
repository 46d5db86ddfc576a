// Package ssh provides the SSH transport used to search remote hosts.
//
// The Client struct encapsulates SSH connection management and supports:
//   - Key-based authentication, including ssh-agent
//   - Password and keyboard-interactive authentication through a prompt
//   - known_hosts verification, with automatic adding of unknown hosts
//   - ~/.ssh/config alias resolution
//
// A connected host is represented by a Conn, which runs commands and opens
// remote files for streamed reading over one transport.
//
// Example Usage:
//
//	client, err := ssh.NewClient("~/.ssh/id_rsa")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conn, err := client.Dial(ctx, ssh.HostSpec{Address: "web1", User: "ops"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	result, err := conn.Run(ctx, "find /var/log -name '*.log'")
package ssh

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Client represents an SSH client with configuration for remote connections.
// Client is safe for concurrent use.
type Client struct {
	// config contains the host key callback and timeout shared by every
	// connection. Auth methods are built per host.
	config *ssh.ClientConfig
	// hostKeys checks and records host keys.
	hostKeys *KnownHostsVerifier
	// keyPath stores the path to the private key file.
	keyPath string
	// signers returns the agent and key file signers.
	signers func() ([]ssh.Signer, error)
	// prompt, when set, adds password and keyboard-interactive
	// authentication after the key-based methods.
	prompt PasswordPrompt
}

// HostSpec defines the parameters for connecting to a remote host.
//
// UserSet, PortSet and KeyPathSet mark values given explicitly by the user;
// only unset values are taken from ~/.ssh/config.
type HostSpec struct {
	// Address is the hostname, alias or IP address of the remote host.
	Address string
	// User is the SSH username for authentication.
	User string
	// Port is the SSH port number (typically 22).
	Port int
	// KeyPath is the path to the private key file for authentication.
	KeyPath string
	// UserSet indicates if User was explicitly configured.
	UserSet bool
	// PortSet indicates if Port was explicitly configured.
	PortSet bool
	// KeyPathSet indicates if KeyPath was explicitly configured.
	KeyPathSet bool
}

// PasswordPrompt asks for a secret for user@host. question is what the
// server asked during keyboard-interactive authentication, or empty for
// plain password authentication.
type PasswordPrompt func(user, host, question string) (string, error)

// ClientOption configures a Client during creation.
type ClientOption func(*clientConfig)

type clientConfig struct {
	knownHostsPath string
	strictHostKey  bool
	timeout        time.Duration
	prompt         PasswordPrompt
}

// WithKnownHosts sets the path to the known_hosts file.
func WithKnownHosts(path string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.knownHostsPath = path
	}
}

// WithStrictHostKey enables strict host key checking.
// When true, connections to unknown hosts will be rejected.
// When false (default), unknown host keys will be automatically added.
func WithStrictHostKey(strict bool) ClientOption {
	return func(cfg *clientConfig) {
		cfg.strictHostKey = strict
	}
}

// WithTimeout sets the TCP connect and handshake timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// WithPasswordPrompt enables password and keyboard-interactive
// authentication, after key-based methods.
func WithPasswordPrompt(p PasswordPrompt) ClientOption {
	return func(cfg *clientConfig) {
		cfg.prompt = p
	}
}

// NewClient creates a new SSH client.
// By default, it uses AutoAdd mode for host key verification (unknown hosts are accepted and added to known_hosts).
// Use WithKnownHosts and WithStrictHostKey options to customize this behavior.
func NewClient(keyPath string, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	expandedKeyPath := expandPath(keyPath)

	hostKeys, err := NewKnownHostsVerifier(cfg.knownHostsPath, !cfg.strictHostKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create host key callback: %w", err)
	}

	return &Client{
		config: &ssh.ClientConfig{
			HostKeyCallback: hostKeys.HostKeyCallback(),
			Timeout:         cfg.timeout,
		},
		hostKeys: hostKeys,
		keyPath: expandedKeyPath,
		signers: buildSigners(expandedKeyPath),
		prompt:  cfg.prompt,
	}, nil
}

// buildSigners collects key-based signers: ssh-agent first, then the given
// key file or, without one, the default key locations. They are offered
// through a single publickey method since the SSH client tries each method
// name only once.
func buildSigners(keyPath string) func() ([]ssh.Signer, error) {
	agentSource, agentErr := agentSigners()

	var fileSigners []ssh.Signer
	if keyPath != "" {
		if keySigner, err := parsePrivateKey(keyPath); err == nil {
			fileSigners = append(fileSigners, keySigner)
		}
	} else {
		defaultKeys := []string{
			"id_rsa",
			"id_ed25519",
			"id_ecdsa",
			"id_ecdsa_sk",
			"id_ed25519_sk",
		}
		home, _ := os.UserHomeDir()
		for _, key := range defaultKeys {
			if keySigner, err := parsePrivateKey(filepath.Join(home, ".ssh", key)); err == nil {
				fileSigners = append(fileSigners, keySigner)
			}
		}
	}

	return func() ([]ssh.Signer, error) {
		var signers []ssh.Signer
		if agentErr == nil {
			if s, err := agentSource(); err == nil {
				signers = append(signers, s...)
			}
		}
		return append(signers, fileSigners...), nil
	}
}

func promptAuthMethods(prompt PasswordPrompt, user, host string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i, q := range questions {
				a, err := prompt(user, host, q)
				if err != nil {
					return nil, err
				}
				answers[i] = a
			}
			return answers, nil
		}),
		ssh.RetryableAuthMethod(ssh.PasswordCallback(func() (string, error) {
			return prompt(user, host, "")
		}), 3),
	}
}

// parsePrivateKey parses private key file
func parsePrivateKey(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(key)
}

// agentSigners returns a signer source backed by the running ssh-agent.
func agentSigners() (func() ([]ssh.Signer, error), error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.DialTimeout("unix", socket, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
	}

	agentClient := agent.NewClient(conn)
	signers, err := agentClient.Signers()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get signers from agent: %w", err)
	}
	if len(signers) == 0 {
		conn.Close()
		return nil, fmt.Errorf("no signers available in ssh-agent")
	}

	return agentClient.Signers, nil
}

// hostsFilePath is read when DNS cannot resolve a host.
var hostsFilePath = "/etc/hosts"

var (
	hostsOnce  sync.Once
	hostsCache map[string]string
)

// loadHostsFile loads the hosts file into a name → IPv4 map.
func loadHostsFile(path string) map[string]string {
	m := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		return m
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		ip := fields[0]
		// IPv4 only
		if strings.Contains(ip, ":") || net.ParseIP(ip) == nil {
			continue
		}

		for _, hostname := range fields[1:] {
			if strings.HasPrefix(hostname, "#") {
				break
			}
			if _, seen := m[hostname]; !seen {
				m[hostname] = ip
			}
		}
	}

	return m
}

// lookupHostsFile looks up hostname in the hosts file
func lookupHostsFile(hostname string) (string, bool) {
	hostsOnce.Do(func() {
		hostsCache = loadHostsFile(hostsFilePath)
	})
	ip, found := hostsCache[hostname]
	return ip, found
}

// resolveHost resolves host address, tries DNS first, falls back to the
// hosts file.
func resolveHost(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err == nil && len(addrs) > 0 {
		for _, addr := range addrs {
			if !strings.Contains(addr, ":") {
				return addr, nil
			}
		}
		return addrs[0], nil
	}

	if ip, found := lookupHostsFile(host); found {
		return ip, nil
	}

	return "", fmt.Errorf("host not found: %s", host)
}

// isIP checks if string is an IP address
func isIP(s string) bool {
	return net.ParseIP(s) != nil
}

// Connect resolves spec and opens an authenticated SSH connection.
// ctx bounds the TCP connect and the handshake.
func (c *Client) Connect(ctx context.Context, spec HostSpec) (*ssh.Client, error) {
	spec = applySSHConfig(spec)

	config := *c.config
	config.User = spec.User
	config.Auth = c.authFor(spec)

	if spec.Port == 0 {
		spec.Port = 22
	}

	hostAddr, err := resolveHost(ctx, spec.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve host %s: %w", spec.Address, err)
	}

	// Host keys are recorded under the name the user gave, not the
	// resolved IP.
	keyAddr := net.JoinHostPort(spec.Address, strconv.Itoa(spec.Port))
	addr := net.JoinHostPort(hostAddr, strconv.Itoa(spec.Port))
	config.HostKeyAlgorithms = c.hostKeys.HostKeyAlgorithms(keyAddr)

	dialer := net.Dialer{Timeout: config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if deadline, ok := handshakeDeadline(ctx, config.Timeout); ok {
		netConn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, keyAddr, &config)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	netConn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// authFor returns the auth methods for spec: public keys (the host's own
// key from ~/.ssh/config first), then the password prompt, if any.
func (c *Client) authFor(spec HostSpec) []ssh.AuthMethod {
	var hostSigners []ssh.Signer
	if keyPath := expandPath(spec.KeyPath); keyPath != "" && keyPath != c.keyPath {
		if signer, err := parsePrivateKey(keyPath); err == nil {
			hostSigners = append(hostSigners, signer)
		}
	}

	methods := []ssh.AuthMethod{
		ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			signers, err := c.signers()
			if err != nil {
				return nil, err
			}
			all := make([]ssh.Signer, 0, len(hostSigners)+len(signers))
			all = append(all, hostSigners...)
			return append(all, signers...), nil
		}),
	}
	if c.prompt != nil {
		methods = append(methods, promptAuthMethods(c.prompt, spec.User, spec.Address)...)
	}
	return methods
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		if t := time.Now().Add(timeout); !ok || t.Before(deadline) {
			return t, true
		}
	}
	return deadline, ok
}

// Dial connects to spec and returns a Conn for running commands and
// reading files on it.
func (c *Client) Dial(ctx context.Context, spec HostSpec) (*Conn, error) {
	client, err := c.Connect(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &Conn{client: client, host: spec.Address}, nil
}

// expandPath expands ~ and environment variables
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			path = filepath.Join(home, path[2:])
		} else {
			path = home
		}
	}
	return os.ExpandEnv(path)
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
