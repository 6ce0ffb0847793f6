package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a configuration string ("debug", "info", "warn", "error")
// to a LogLevel. Unknown or empty values yield LevelInfo and ok=false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// LogEntry is the structured log entry delivered to the interactive console.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	defaultLogger   *slog.Logger
	consoleChannel  chan LogEntry
	isConsoleMode   bool
	consoleMinLevel LogLevel

	// consoleMu guards consoleChannel against a close racing a send.
	consoleMu sync.RWMutex
)

const consoleChannelBufferSize = 1024

// Format selects the slog handler used in CLI mode.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

func initCommon(consoleMode bool, level LogLevel, output io.Writer, format Format, bufferSize int) <-chan LogEntry {
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}

	var handler slog.Handler
	if consoleMode {
		isConsoleMode = true
		consoleMinLevel = level
		if bufferSize <= 0 {
			bufferSize = consoleChannelBufferSize
		}
		consoleMu.Lock()
		consoleChannel = make(chan LogEntry, bufferSize)
		consoleMu.Unlock()
		// The console renders entries itself; direct slog output is discarded.
		handler = slog.NewTextHandler(io.Discard, opts)
	} else {
		isConsoleMode = false
		if format == FormatJSON {
			handler = slog.NewJSONHandler(output, opts)
		} else {
			handler = slog.NewTextHandler(output, opts)
		}
	}
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	if isConsoleMode {
		return consoleChannel
	}
	return nil
}

// InitForCLI initializes text logging to output for commands and the daemon.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	initCommon(false, filterLevel, output, FormatText, 0)
}

// InitForCLIWithFormat is InitForCLI with an explicit handler format.
func InitForCLIWithFormat(filterLevel LogLevel, output io.Writer, format Format) {
	initCommon(false, filterLevel, output, format, 0)
}

// InitForConsole routes log entries at or above filterLevel into the returned
// channel so the interactive console can print them between prompts.
func InitForConsole(filterLevel LogLevel) <-chan LogEntry {
	return initCommon(true, filterLevel, io.Discard, FormatText, consoleChannelBufferSize)
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if isConsoleMode {
		if level < consoleMinLevel {
			return
		}
	} else if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}
	now := time.Now()

	if isConsoleMode {
		consoleMu.RLock()
		defer consoleMu.RUnlock()
		if consoleChannel == nil {
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] console mode active without a channel: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
			return
		}
		select {
		case consoleChannel <- LogEntry{Timestamp: now, Level: level, Subsystem: subsystem, Message: msg, Err: err}:
		default:
			// Drop rather than block a reconcile lane on a slow terminal.
		}
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// CloseConsoleChannel closes the console log channel and returns logging to
// a discarded CLI handler. Call once when the console exits.
func CloseConsoleChannel() {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if consoleChannel != nil {
		close(consoleChannel)
		consoleChannel = nil
	}
	isConsoleMode = false
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
}
