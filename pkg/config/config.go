// Package config loads the optional settings file and turns command-line
// flags into the immutable Options of one run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// File represents the settings file (~/.logparser/config.toml).
type File struct {
	SSH    SSHConfig    `toml:"ssh"`
	Search SearchConfig `toml:"search"`
	Log    LogConfig    `toml:"log"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level      string `toml:"level"`        // debug, info, warn, error
	Output     string `toml:"output"`       // stdout, stderr, or file path
	NoColor    bool   `toml:"no_color"`     // disable colored output
	ShowTime   bool   `toml:"show_time"`    // show timestamp
	MaxSizeMB  int    `toml:"max_size_mb"`  // rotate file output after this size
	MaxBackups int    `toml:"max_backups"`  // rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // days to keep rotated files
	Compress   bool   `toml:"compress"`     // gzip rotated files
}

// SSHConfig contains default settings for SSH connections
type SSHConfig struct {
	User           string `toml:"user"`
	Port           int    `toml:"port"`
	KeyPath        string `toml:"key_path"`
	Timeout        string `toml:"timeout"`         // Parsed as duration
	KnownHostsPath string `toml:"known_hosts"`     // Path to known_hosts file
	StrictHostKey  bool   `toml:"strict_host_key"` // Reject unknown hosts instead of adding them
}

// SearchConfig contains default search settings
type SearchConfig struct {
	Dir      string `toml:"dir"`      // remote base directory
	Parallel int    `toml:"parallel"` // hosts searched at once
}

// Settings wraps the settings file with its path.
type Settings struct {
	mu   sync.RWMutex
	file *File
	path string
}

// Defaults returns the built-in settings.
func Defaults() *File {
	return &File{
		SSH: SSHConfig{
			User:           "", // Empty means use current system user
			Port:           22,
			KeyPath:        "", // Empty means try default key locations
			Timeout:        "30s",
			KnownHostsPath: "~/.ssh/known_hosts",
			StrictHostKey:  false,
		},
		Search: SearchConfig{
			Dir:      ".",
			Parallel: 1,
		},
		Log: LogConfig{
			Level:      "info",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// DefaultPath returns ~/.logparser/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".logparser", "config.toml")
}

// Load reads settings from path. An empty path means DefaultPath. A
// missing file is not an error: the defaults are used.
func Load(path string) (*Settings, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	s := &Settings{
		file: Defaults(),
		path: ExpandPath(path),
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := s.load(); err != nil {
			return nil, &ConfigError{Field: "config", Err: fmt.Errorf("failed to load %s: %w", s.path, err)}
		}
	} else if explicit {
		return nil, &ConfigError{Field: "config", Err: err}
	}

	return s, nil
}

// load decodes the file over the defaults so that absent keys keep their
// default values.
func (s *Settings) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	file := Defaults()
	if _, err := toml.Decode(string(data), file); err != nil {
		return err
	}

	s.file = file
	return nil
}

// Path returns the settings file path.
func (s *Settings) Path() string {
	return s.path
}

// File returns the loaded settings.
func (s *Settings) File() *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file
}

// DialTimeout returns the parsed SSH dial timeout.
func (f *File) DialTimeout() (time.Duration, error) {
	if f.SSH.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(f.SSH.Timeout)
	if err != nil {
		return 0, &ConfigError{Field: "ssh.timeout", Err: err}
	}
	return d, nil
}

// ExpandPath expands ~ in path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return filepath.Join(home, path[2:])
		}
		return home
	}

	return path
}
