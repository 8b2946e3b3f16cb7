// Package logger builds the process logger: JSON records written to a
// timestamped file under the logs directory, optionally copied to stdout.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileLayout is the time layout of log file names (month_day_year_h_m_s)
const FileLayout = "01_02_2006_15_04_05"

type Config struct {
	Dir    string
	Level  string // debug, info, warn, error; info when empty
	Stdout bool
	Name   string // added to every record as "logger"
	Now    func() time.Time
}

// Logger owns the open log file
type Logger struct {
	*slog.Logger
	Path string
	file *os.File
}

// New creates the logs directory and a fresh log file named after the
// current time
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("logs directory is required")
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	path := filepath.Join(cfg.Dir, now().Format(FileLayout)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var w io.Writer = file
	if cfg.Stdout {
		w = io.MultiWriter(file, os.Stdout)
	}
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
	if cfg.Name != "" {
		l = l.With("logger", cfg.Name)
	}
	return &Logger{Logger: l, Path: path, file: file}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
