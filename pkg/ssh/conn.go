package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ExecResult contains the result of executing a command on a remote host.
type ExecResult struct {
	// Host is the address of the host where the command was executed.
	Host string
	// Output contains the standard output from the command.
	Output []byte
	// Error contains the standard error output from the command.
	Error []byte
	// ExitCode is the exit status returned by the command.
	ExitCode int
	// ErrorMsg contains any error that occurred during execution.
	ErrorMsg error
}

// Conn is an open connection to one host. Sessions opened through it share
// the underlying transport, which is released by Close.
type Conn struct {
	client *ssh.Client
	host   string
}

// Close closes the transport and every session still open on it.
func (c *Conn) Close() error {
	return c.client.Close()
}

// Run executes cmd and captures its output. A non-zero exit status is not
// an error: it is reported in ExecResult.ExitCode and ErrorMsg. The returned
// error is set only when the command could not be run at all or ctx was
// cancelled.
func (c *Conn) Run(ctx context.Context, cmd string) (*ExecResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case err := <-done:
		return c.parseResult(&stdoutBuf, &stderrBuf, err)
	case <-ctx.Done():
		// Ask the remote process to stop, then drop the session.
		_ = session.Signal(ssh.SIGINT)
		session.Close()
		<-done
		return nil, ctx.Err()
	}
}

// parseResult parses command execution result
func (c *Conn) parseResult(stdoutBuf, stderrBuf *bytes.Buffer, err error) (*ExecResult, error) {
	result := &ExecResult{
		Host:   c.host,
		Output: stdoutBuf.Bytes(),
		Error:  stderrBuf.Bytes(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missing):
			result.ExitCode = -1
		default:
			return nil, err
		}
		result.ErrorMsg = err
	}

	return result, nil
}

// Open starts streaming the remote file at path. The file is read with
// cat on its own session; closing the reader ends that session. Errors from
// the remote side, such as a missing file, are returned by Close.
func (c *Conn) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}

	f := &remoteFile{
		r:       stdout,
		session: session,
		path:    path,
	}
	session.Stderr = &f.stderr

	if err := session.Start("cat -- " + ShellQuote(path)); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	// Unblock readers when the caller gives up.
	f.stop = context.AfterFunc(ctx, func() {
		session.Close()
	})

	return f, nil
}

// remoteFile streams the output of a remote cat.
type remoteFile struct {
	r       io.Reader
	session *ssh.Session
	stderr  bytes.Buffer
	path    string
	eof     bool
	stop    func() bool
	closed  bool
}

func (f *remoteFile) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		f.eof = true
	}
	return n, err
}

// Close ends the session. If the whole file was read, the remote exit
// status is checked and a failure returned as an error.
func (f *remoteFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.stop != nil {
		f.stop()
	}

	if !f.eof {
		// Stopped early: the remote side may still be writing, so tear
		// the session down before waiting on it.
		f.session.Close()
		f.session.Wait()
		return nil
	}

	err := f.session.Wait()
	f.session.Close()
	if err != nil {
		if msg := strings.TrimSpace(f.stderr.String()); msg != "" {
			return fmt.Errorf("read %s: %w: %s", f.path, err, msg)
		}
		return fmt.Errorf("read %s: %w", f.path, err)
	}
	return nil
}
