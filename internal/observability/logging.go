package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/musher-dev/ember/internal/paths"
)

const (
	redactedValue = "[REDACTED]"

	maxLogFileBytes = 10 << 20
	maxLogBackups   = 3
)

type contextKey struct{}

// Config selects the log level, format and sinks for one ember process.
type Config struct {
	Level  string
	Format string
	// LogFile is appended to. Empty means the default file when stderr is
	// off, and no file otherwise.
	LogFile string
	// StderrMode is auto, on or off. Auto keeps stderr free while an
	// interactive REPL owns the terminal.
	StderrMode     string
	InteractiveTTY bool
	RunID          string
	CommandPath    string
	Version        string
	Commit         string
}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// NewLogger builds the process logger. The returned cleanup closes any log
// file that was opened.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out, err := openSinks(cfg)
	if err != nil {
		return nil, nil, err
	}

	handler, err := newHandler(cfg.Format, out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})
	if err != nil {
		_ = out.Close()
		return nil, nil, err
	}

	logger := slog.New(handler).With(
		slog.String("run.id", cfg.RunID),
		slog.String("command.path", cfg.CommandPath),
		slog.String("ember.version", cfg.Version),
		slog.String("ember.commit", cfg.Commit),
	)

	return logger, out.Close, nil
}

// sinks is the set of destinations a logger writes to.
type sinks struct {
	io.Writer
	files []*os.File
}

func (s *sinks) Close() error {
	var errs []error
	for _, f := range s.files {
		errs = append(errs, f.Close())
	}

	return errors.Join(errs...)
}

func openSinks(cfg *Config) (*sinks, error) {
	stderrEnabled, err := shouldEnableStderr(cfg.StderrMode, cfg.InteractiveTTY)
	if err != nil {
		return nil, err
	}

	logPath := strings.TrimSpace(cfg.LogFile)
	if !stderrEnabled && logPath == "" {
		defaultPath, pathErr := paths.DefaultLogFile()
		if pathErr != nil {
			return nil, fmt.Errorf("no log sinks configured: set --log-file or enable --log-stderr: %w", pathErr)
		}

		logPath = defaultPath
	}

	s := &sinks{}

	var writers []io.Writer

	if stderrEnabled {
		writers = append(writers, os.Stderr)
	}

	if logPath != "" {
		f, openErr := openLogFile(logPath)
		if openErr != nil {
			return nil, openErr
		}

		writers = append(writers, f)
		s.files = append(s.files, f)
	}

	s.Writer = io.MultiWriter(writers...)

	return s, nil
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format: %q (allowed: json, text)", format)
	}
}

func openLogFile(path string) (*os.File, error) {
	cleanPath := filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}

	if err := rotateLogFile(cleanPath, maxLogFileBytes, maxLogBackups); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// rotateLogFile shifts path to path.1 (and older backups up by one) once it
// exceeds maxBytes. At most keep backups survive.
func rotateLogFile(path string, maxBytes int64, keep int) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat log file: %w", err)
	}

	if info.Size() <= maxBytes {
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", path, keep)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove oldest log backup: %w", err)
	}

	for i := keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		if err := os.Rename(from, fmt.Sprintf("%s.%d", path, i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rotate log backup: %w", err)
		}
	}

	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	return nil
}

func shouldEnableStderr(mode string, interactiveTTY bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return !interactiveTTY, nil
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid --log-stderr value %q (allowed: auto, on, off)", mode)
	}
}

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(level string) (slog.Leveler, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}

	return l, nil
}

// Attribute keys whose values never reach a sink. Host programs log from
// inside the REPL, so the list covers common credential names.
var sensitiveSubstrings = []string{"token", "api_key", "apikey", "secret", "credential", "password", "authorization"}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if isSensitiveKey(strings.ToLower(attr.Key)) {
		return slog.String(attr.Key, redactedValue)
	}

	return attr
}

func isSensitiveKey(key string) bool {
	for _, pattern := range sensitiveSubstrings {
		if strings.Contains(key, pattern) {
			return true
		}
	}

	return false
}
