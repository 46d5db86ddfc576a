// Package logger provides a simple leveled logger for log-parser.
//
// Log lines go to stderr by default so they never mix with the report on
// stdout. When Output names a file, it is rotated by lumberjack.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the log level
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota
	// INFO level for general informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string to LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorGray   = "\033[90m"
)

// Logger is a simple leveled logger
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	output   io.Writer
	closer   io.Closer
	noColor  bool
	showTime bool
}

// Config holds logger configuration
type Config struct {
	Level    string
	Output   string // "stdout", "stderr", or file path
	NoColor  bool
	ShowTime bool

	// Rotation settings, only used for file output.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a new logger with the given configuration
func New(cfg *Config) *Logger {
	level := INFO
	if cfg != nil && cfg.Level != "" {
		level = ParseLogLevel(cfg.Level)
	}

	output := io.Writer(os.Stderr)
	var closer io.Closer
	noColor := false
	showTime := false

	if cfg != nil {
		showTime = cfg.ShowTime
		noColor = cfg.NoColor

		switch cfg.Output {
		case "", "stderr":
		case "stdout":
			output = os.Stdout
		default:
			lj := &lumberjack.Logger{
				Filename:   cfg.Output,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			output = lj
			closer = lj
			noColor = true
			// File logs are read later, timestamps are always useful there.
			showTime = true
		}
	}

	if !noColor {
		if f, ok := output.(*os.File); ok {
			noColor = !IsTerminal(f)
		}
	}

	return &Logger{
		level:    level,
		output:   output,
		closer:   closer,
		noColor:  noColor,
		showTime: showTime,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New(&Config{Level: "error", NoColor: true})
	l.output = io.Discard
	return l
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	if f, ok := w.(*os.File); !ok || !IsTerminal(f) {
		l.noColor = true
	}
}

// Close releases the rotating log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// log is the internal logging method
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)

	var levelStr, color string
	switch level {
	case DEBUG:
		levelStr = "DEBUG"
		color = colorGray
	case INFO:
		levelStr = "INFO "
		color = colorGreen
	case WARN:
		levelStr = "WARN "
		color = colorYellow
	case ERROR:
		levelStr = "ERROR"
		color = colorRed
	}

	prefix := ""
	if l.showTime {
		prefix = time.Now().Format("2006-01-02 15:04:05") + " "
	}

	if l.noColor {
		fmt.Fprintf(l.output, "%s[%s] %s\n", prefix, levelStr, msg)
	} else {
		fmt.Fprintf(l.output, "%s[%s%s%s] %s\n", prefix, color, levelStr, colorReset, msg)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// WithField returns a log entry with fields
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{
		logger: l,
		fields: map[string]interface{}{key: value},
	}
}

// WithFields returns a log entry with multiple fields
func (l *Logger) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{
		logger: l,
		fields: fields,
	}
}

// Entry represents a log entry with fields
type Entry struct {
	logger *Logger
	fields map[string]interface{}
}

// WithField adds a field to a copy of the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	fields := make(map[string]interface{}, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Entry{logger: e.logger, fields: fields}
}

// Debug logs a debug message with fields
func (e *Entry) Debug(format string, args ...interface{}) {
	e.log(DEBUG, format, args...)
}

// Info logs an info message with fields
func (e *Entry) Info(format string, args ...interface{}) {
	e.log(INFO, format, args...)
}

// Warn logs a warning message with fields
func (e *Entry) Warn(format string, args ...interface{}) {
	e.log(WARN, format, args...)
}

// Error logs an error message with fields
func (e *Entry) Error(format string, args ...interface{}) {
	e.log(ERROR, format, args...)
}

func (e *Entry) log(level LogLevel, format string, args ...interface{}) {
	if len(e.fields) == 0 {
		e.logger.log(level, format, args...)
		return
	}

	// Sorted so the same entry always renders the same way.
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.fields[k]))
	}
	prefix := strings.Join(parts, " ")

	msg := fmt.Sprintf(format, args...)
	e.logger.log(level, "%s %s", prefix, msg)
}

// IsTerminal checks if the file is a terminal
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Default logger instance
var std = New(&Config{Level: "INFO"})

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	std = l
}

// Default returns the default logger
func Default() *Logger {
	return std
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	std.Warn(format, args...)
}
