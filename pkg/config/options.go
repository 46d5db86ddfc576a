package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"time"
)

// ConfigError reports an invalid setting. It is fatal: a run never starts
// with one.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Flags holds the raw command-line values. Zero values mean "not given",
// in which case the settings file or built-in default applies.
type Flags struct {
	Term           string
	Servers        string // path, "" or "-" for stdin
	User           string
	Verbose        bool
	IgnoreCase     bool
	Execute        bool
	Dir            string
	Parallel       int
	Port           int
	KeyPath        string
	KnownHostsPath string
	StrictHostKey  bool
	AskPass        bool
	Timeout        time.Duration
	LogLevel       string
	TUI            bool
}

// Options is the configuration of one run. It is built once by Build and
// never modified afterwards.
type Options struct {
	Term       string
	Pattern    *regexp.Regexp
	Hosts      io.ReadCloser
	HostsName  string
	FromStdin  bool
	User       string
	UserSet    bool // User came from a flag or the settings file
	Verbose    bool
	IgnoreCase bool
	Execute    bool
	Dir        string
	Parallel   int
	TUI        bool

	SSH SSHOptions
	Log LogConfig
}

// SSHOptions are the resolved transport settings.
type SSHOptions struct {
	Port           int
	PortSet        bool // Port differs from the built-in default or came from a flag
	KeyPath        string
	KnownHostsPath string
	StrictHostKey  bool
	AskPass        bool
	Timeout        time.Duration
}

// Build resolves flags against the settings file, compiles the search
// pattern and opens the host source. Flags take precedence over the file.
// stdin is used when no servers file is given.
func Build(fl Flags, file *File, stdin io.Reader) (*Options, error) {
	if file == nil {
		file = Defaults()
	}

	pattern, err := CompilePattern(fl.Term, fl.IgnoreCase)
	if err != nil {
		return nil, err
	}

	u := firstNonEmpty(fl.User, file.SSH.User)
	userSet := u != ""
	if !userSet {
		u = CurrentUser()
	}

	timeout := fl.Timeout
	if timeout == 0 {
		if timeout, err = file.DialTimeout(); err != nil {
			return nil, err
		}
	}

	opts := &Options{
		Term:       fl.Term,
		Pattern:    pattern,
		User:       u,
		UserSet:    userSet,
		Verbose:    fl.Verbose,
		IgnoreCase: fl.IgnoreCase,
		Execute:    fl.Execute,
		Dir:        firstNonEmpty(fl.Dir, file.Search.Dir, "."),
		Parallel:   firstPositive(fl.Parallel, file.Search.Parallel, 1),
		TUI:        fl.TUI,
		SSH: SSHOptions{
			Port:           firstPositive(fl.Port, file.SSH.Port, 22),
			PortSet:        fl.Port > 0 || (file.SSH.Port > 0 && file.SSH.Port != 22),
			KeyPath:        ExpandPath(firstNonEmpty(fl.KeyPath, file.SSH.KeyPath)),
			KnownHostsPath: ExpandPath(firstNonEmpty(fl.KnownHostsPath, file.SSH.KnownHostsPath)),
			StrictHostKey:  fl.StrictHostKey || file.SSH.StrictHostKey,
			AskPass:        fl.AskPass,
			Timeout:        timeout,
		},
		Log: file.Log,
	}

	if fl.LogLevel != "" {
		opts.Log.Level = fl.LogLevel
	} else if fl.Verbose {
		opts.Log.Level = "debug"
	}

	if fl.Servers == "" || fl.Servers == "-" {
		if stdin == nil {
			return nil, &ConfigError{Field: "servers", Err: errors.New("no host source")}
		}
		opts.Hosts = io.NopCloser(stdin)
		opts.HostsName = "<stdin>"
		opts.FromStdin = true
	} else {
		f, err := os.Open(ExpandPath(fl.Servers))
		if err != nil {
			return nil, &ConfigError{Field: "servers", Err: err}
		}
		opts.Hosts = f
		opts.HostsName = fl.Servers
	}

	return opts, nil
}

// CompilePattern compiles the search expression once, honoring
// case-insensitivity.
func CompilePattern(term string, ignoreCase bool) (*regexp.Regexp, error) {
	expr := term
	if ignoreCase {
		expr = "(?i)" + term
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ConfigError{Field: "search term", Err: err}
	}
	return re, nil
}

// CurrentUser returns the local user name.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "root"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
