// Package diagnostics collects per-operation diagnostics and builds the
// uniform result envelope every node operation returns.
//
// A Log retains only entries at or below its maximum level. The default
// maximum is Error, which keeps the envelope terse; every entry is still
// mirrored to the structured process logger so nothing is lost for operators
// who run with --debug.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/klauern/dxnodes/internal/logging"
)

// Level orders diagnostics by severity. Lower values are more severe.
type Level int

const (
	// Error records failures.
	Error Level = iota
	// Warning records recoverable problems.
	Warning
	// Info records progress narration.
	Info
	// Debug records detail useful only when troubleshooting.
	Debug
)

// DefaultLevel is the retention level used when none is configured.
const DefaultLevel = Error

// String returns the level name.
func (l Level) String() string {
	switch l {
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	case Debug:
		return "Debug"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// slogLevel maps a diagnostics level onto the slog scale.
func (l Level) slogLevel() slog.Level {
	switch l {
	case Error:
		return logging.LevelError
	case Warning:
		return logging.LevelWarn
	case Info:
		return logging.LevelInfo
	default:
		return logging.LevelDebug
	}
}

// ParseLevel parses a level name. It is case-insensitive and accepts "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return Error, nil
	case "warning", "warn":
		return Warning, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return Error, fmt.Errorf("unknown diagnostics level %q (valid: error, warning, info, debug)", s)
	}
}

// Entry is one retained diagnostic.
type Entry struct {
	Level Level
	Text  string
}

// String renders the entry as "[Level] text".
func (e Entry) String() string {
	return "[" + e.Level.String() + "] " + e.Text
}

// Log is a leveled, ordered diagnostics log. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	max     Level
	entries []Entry
	logger  *slog.Logger
}

// New creates a log retaining entries at or below max.
func New(max Level) *Log {
	return &Log{max: max}
}

// NewDefault creates a log retaining Error entries only.
func NewDefault() *Log {
	return New(DefaultLevel)
}

// WithLogger sets the structured logger entries are mirrored to.
// When unset the package default logger is used.
func (l *Log) WithLogger(logger *slog.Logger) *Log {
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
	return l
}

// MaxLevel returns the retention level.
func (l *Log) MaxLevel() Level {
	return l.max
}

// Add records text at level. Entries above the retention level are dropped
// from the log but still reach the structured logger.
func (l *Log) Add(level Level, text string) {
	l.mu.Lock()
	logger := l.logger
	if level <= l.max {
		l.entries = append(l.entries, Entry{Level: level, Text: text})
	}
	l.mu.Unlock()

	if logger == nil {
		logger = logging.Default()
	}
	logger.Log(context.Background(), level.slogLevel(), text)
}

// Errorf records a formatted Error entry.
func (l *Log) Errorf(format string, args ...any) {
	l.Add(Error, fmt.Sprintf(format, args...))
}

// Warnf records a formatted Warning entry.
func (l *Log) Warnf(format string, args ...any) {
	l.Add(Warning, fmt.Sprintf(format, args...))
}

// Infof records a formatted Info entry.
func (l *Log) Infof(format string, args ...any) {
	l.Add(Info, fmt.Sprintf(format, args...))
}

// Debugf records a formatted Debug entry.
func (l *Log) Debugf(format string, args ...any) {
	l.Add(Debug, fmt.Sprintf(format, args...))
}

// All returns the retained entries in insertion order.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lines returns the retained entries rendered as strings.
func (l *Log) Lines() []string {
	entries := l.All()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Joined returns the retained entries joined by newlines.
func (l *Log) Joined() string {
	return strings.Join(l.Lines(), "\n")
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
