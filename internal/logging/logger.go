// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// zerolog returns the matching zerolog level, defaulting to info.
func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogEntry is one line kept in the in-memory history.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Data      string `json:"data,omitempty"`
}

// Logger wraps zerolog with optional file output and a log history
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string
	mu      sync.RWMutex
	history []LogEntry
	maxHist int
	onLog   func(LogEntry)
}

// Config holds logger configuration
type Config struct {
	Dir        string   `mapstructure:"dir"`         // Directory for log files (default: ~/.cortexmotion/logs)
	Level      LogLevel `mapstructure:"level"`       // Minimum log level (default: info)
	MaxHistory int      `mapstructure:"max_history"` // Max entries to keep in memory (default: 500)
	Console    bool     `mapstructure:"console"`     // Log to stderr
	File       bool     `mapstructure:"file"`        // Log to a dated file under Dir
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Dir:        filepath.Join(home, ".cortexmotion", "logs"),
		Level:      LevelInfo,
		MaxHistory: 500,
		Console:    true,
		File:       false,
	}
}

// New creates a Logger writing to stderr and, if enabled, a log file.
func New(cfg Config) (*Logger, error) {
	return NewConsole(cfg, os.Stderr)
}

// NewConsole is New with console output sent to console instead of stderr.
func NewConsole(cfg Config, console io.Writer) (*Logger, error) {
	var writers []io.Writer
	var file *os.File
	var logPath string

	if cfg.File {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logPath = filepath.Join(cfg.Dir, fmt.Sprintf("cortexmotion_%s.log", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"})
	}

	l := NewWithWriter(io.MultiWriter(writers...), cfg)
	l.file = file
	l.logPath = logPath

	l.Info("logging", "Logger initialized", map[string]interface{}{
		"logFile": logPath,
		"level":   string(cfg.Level),
	})
	return l, nil
}

// NewWithWriter builds a Logger on top of w with no file handling.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}
	zlog := zerolog.New(w).Level(cfg.Level.zerolog()).With().
		Timestamp().
		Str("app", "cortexmotion").
		Logger()

	return &Logger{
		zlog:    zlog,
		history: make([]LogEntry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}
}

// SetOnLog sets a callback invoked for every recorded entry.
func (l *Logger) SetOnLog(fn func(LogEntry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLog = fn
}

func (l *Logger) addToHistory(level zerolog.Level, component, msg, data string) {
	if level < l.zlog.GetLevel() {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level.String(),
		Component: component,
		Message:   msg,
		Data:      data,
	}

	l.mu.Lock()
	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
	fn := l.onLog
	l.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
}

// GetHistory returns up to limit of the most recent entries, oldest first.
func (l *Logger) GetHistory(limit int) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	result := make([]LogEntry, limit)
	copy(result, l.history[len(l.history)-limit:])
	return result
}

// GetLogPath returns the current log file path, empty without file output.
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// Close closes the log file
func (l *Logger) Close() error {
	l.Info("logging", "Logger shutting down", nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// formatData renders data as sorted key=value pairs.
func formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, ", ")
}

func (l *Logger) log(event *zerolog.Event, level zerolog.Level, component, msg string, data map[string]interface{}) {
	event.Str("component", component).Fields(data).Msg(msg)
	l.addToHistory(level, component, msg, formatData(data))
}

// Debug logs a debug message
func (l *Logger) Debug(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Debug(), zerolog.DebugLevel, component, msg, data)
}

// Info logs an info message
func (l *Logger) Info(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Info(), zerolog.InfoLevel, component, msg, data)
}

// Warn logs a warning message
func (l *Logger) Warn(component, msg string, data map[string]interface{}) {
	l.log(l.zlog.Warn(), zerolog.WarnLevel, component, msg, data)
}

// Error logs an error message
func (l *Logger) Error(component, msg string, err error, data map[string]interface{}) {
	if err != nil {
		data = withError(data, err)
	}
	l.log(l.zlog.Error(), zerolog.ErrorLevel, component, msg, data)
}

func withError(data map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

// Component returns a zerolog.Logger with the component field set, for
// packages that log through zerolog directly.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}
