package search

import (
	"context"
	"io"
	"strings"

	logssh "github.com/liliang-cn/logparser/pkg/ssh"
)

// CommandResult is the captured outcome of a remote command.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Session is an open connection to one host.
type Session interface {
	// Run executes cmd. A non-zero exit status is reported in the result,
	// not as an error.
	Run(ctx context.Context, cmd string) (*CommandResult, error)
	// Open streams the remote file at path. Errors from the remote side
	// may only surface on Close.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Close() error
}

// Transport opens sessions to hosts.
type Transport interface {
	Dial(ctx context.Context, host, user string) (Session, error)
}

// SSHTransport is a Transport over SSH. Port and KeyPath apply to every
// host; unset values fall back to ~/.ssh/config.
type SSHTransport struct {
	Client  *logssh.Client
	Port    int
	KeyPath string
	// UserSet and PortSet mark values given explicitly, which
	// ~/.ssh/config does not override.
	UserSet bool
	PortSet bool
}

// Dial connects to host as user.
func (t *SSHTransport) Dial(ctx context.Context, host, user string) (Session, error) {
	conn, err := t.Client.Dial(ctx, logssh.HostSpec{
		Address:    host,
		User:       user,
		Port:       t.Port,
		KeyPath:    t.KeyPath,
		UserSet:    t.UserSet,
		PortSet:    t.PortSet && t.Port != 0,
		KeyPathSet: t.KeyPath != "",
	})
	if err != nil {
		return nil, err
	}
	return &sshSession{conn: conn}, nil
}

type sshSession struct {
	conn *logssh.Conn
}

func (s *sshSession) Run(ctx context.Context, cmd string) (*CommandResult, error) {
	res, err := s.conn.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &CommandResult{
		Stdout:   res.Output,
		Stderr:   []byte(strings.TrimSpace(string(res.Error))),
		ExitCode: res.ExitCode,
	}, nil
}

func (s *sshSession) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.conn.Open(ctx, path)
}

func (s *sshSession) Close() error {
	return s.conn.Close()
}
