package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// TODO: Consider log rotation for app.log

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
)

// getLogFilePath determines the path for the application log file based on XDG spec.
func getLogFilePath() (string, error) {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}

	return filepath.Join(stateDir, "profmerge", "app.log"), nil
}

// openLogFile opens the application log file for appending, creating its directory if needed.
func openLogFile() (*os.File, error) {
	logFilePath, err := getLogFilePath()
	if err != nil {
		return nil, err
	}

	// 0750: user rwx, group rx, others ---
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	// 0640: user rw, group r, others ---
	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logFilePath, err)
	}
	return file, nil
}

// ParseLevel converts a config/flag level name into a slog level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger configures the package logger to write JSON records to w
// and, when logToFile is set, to the application log file as well.
// The file handle is left for the OS to close on exit.
func InitLogger(w io.Writer, lvl slog.Level, logToFile bool) {
	level.Set(lvl)

	writers := []io.Writer{w}
	if logToFile {
		file, err := openLogFile()
		if err != nil {
			fmt.Fprintf(w, "File logging disabled: %v\n", err)
		} else {
			writers = append(writers, file)
		}
	}

	defaultLogger = slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level}))
}

// SetOutput points the logger at w, keeping the current level. Used by tests.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLevel changes the minimum level of the active logger.
func SetLevel(lvl slog.Level) {
	level.Set(lvl)
}

// checkLogger ensures the logger is initialized before use, preventing nil panics.
func checkLogger() {
	if defaultLogger == nil {
		InitLogger(os.Stderr, slog.LevelInfo, false)
	}
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	checkLogger()
	defaultLogger.Info(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	checkLogger()
	defaultLogger.Error(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	checkLogger()
	defaultLogger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	checkLogger()
	defaultLogger.Warn(msg, args...)
}
