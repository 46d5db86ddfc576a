package search

import "fmt"

// HostUnreachableError is returned when a host cannot be connected to or
// authenticated against. The host is skipped and reported as unreachable.
type HostUnreachableError struct {
	Host string
	Err  error
}

func (e *HostUnreachableError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *HostUnreachableError) Unwrap() error {
	return e.Err
}

// RemoteCommandError is returned when a remote command exits non-zero.
type RemoteCommandError struct {
	Host     string
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *RemoteCommandError) Error() string {
	msg := fmt.Sprintf("%q exited with status %d", e.Cmd, e.ExitCode)
	if e.Host != "" {
		msg = e.Host + ": " + msg
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// FileReadError is returned when a remote file cannot be opened or read to
// the end. The file is left out of the report.
type FileReadError struct {
	Host string
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("%s: reading %s: %v", e.Host, e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}
