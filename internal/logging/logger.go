// Package logging provides structured logging for the asynccall module.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with asynccall-specific structured fields.
type Logger struct {
	zlog      zerolog.Logger
	processID *int64
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(zerolog.DebugLevel)
	LevelInfo  LogLevel = LogLevel(zerolog.InfoLevel)
	LevelWarn  LogLevel = LogLevel(zerolog.WarnLevel)
	LevelError LogLevel = LogLevel(zerolog.ErrorLevel)
)

// Config holds logging configuration.
type Config struct {
	Level   LogLevel
	Format  string // "json" or "text"
	Output  io.Writer
	Sync    bool // If true, writes are synchronous (useful for testing)
	NoColor bool // If true, disables ANSI color codes (useful for testing)
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// asyncWriter wraps an io.Writer with an async buffered channel so that
// logging from the executor's hot path never blocks on a slow sink.
type asyncWriter struct {
	out    io.Writer
	ch     chan []byte
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

func newAsyncWriter(w io.Writer, bufferSize int) *asyncWriter {
	aw := &asyncWriter{
		out:  w,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	go aw.run()
	return aw
}

func (aw *asyncWriter) run() {
	defer close(aw.done)
	for msg := range aw.ch {
		aw.out.Write(msg)
	}
}

func (aw *asyncWriter) Write(p []byte) (n int, err error) {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	aw.mu.Unlock()

	msg := make([]byte, len(p))
	copy(msg, p)

	select {
	case aw.ch <- msg:
		return len(p), nil
	default:
		// Buffer full - drop message rather than block the caller.
		return len(p), nil
	}
}

func (aw *asyncWriter) Close() error {
	aw.mu.Lock()
	if !aw.closed {
		aw.closed = true
		close(aw.ch)
	}
	aw.mu.Unlock()
	<-aw.done
	return nil
}

// NewLogger creates a new structured logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = config.Output
	if !config.Sync {
		output = newAsyncWriter(config.Output, 1000)
	}

	var zlog zerolog.Logger
	switch config.Format {
	case "json":
		zlog = zerolog.New(output).With().Timestamp().Logger()
	default:
		consoleWriter := zerolog.ConsoleWriter{Out: output, NoColor: config.NoColor}
		zlog = zerolog.New(consoleWriter).With().Timestamp().Logger()
	}

	zlog = zlog.Level(zerolog.Level(config.Level))

	return &Logger{zlog: zlog}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithProcess returns a logger carrying the owning process ID.
func (l *Logger) WithProcess(processID int64) *Logger {
	return &Logger{
		zlog:      l.zlog.With().Int64("process_id", processID).Logger(),
		processID: &processID,
	}
}

// WithRing returns a logger carrying which ring (sq/cq) an event concerns.
func (l *Logger) WithRing(name string) *Logger {
	return &Logger{
		zlog:      l.zlog.With().Str("ring", name).Logger(),
		processID: l.processID,
	}
}

// WithTag returns a logger carrying the submission's user_data tag and
// opcode name.
func (l *Logger) WithTag(userData uint64, opName string) *Logger {
	return &Logger{
		zlog:      l.zlog.With().Uint64("user_data", userData).Str("op", opName).Logger(),
		processID: l.processID,
	}
}

// WithError returns a logger carrying an error.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		zlog:      l.zlog.With().Err(err).Logger(),
		processID: l.processID,
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(l.zlog.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(l.zlog.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(l.zlog.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(l.zlog.Error(), msg, args) }

func (l *Logger) log(event *zerolog.Event, msg string, args []any) {
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			key, ok := args[i].(string)
			if !ok {
				continue
			}
			event = event.Interface(key, args[i+1])
		}
	}
	event.Msg(msg)
}

func (l *Logger) DebugContext(_ context.Context, msg string, args ...any) { l.Debug(msg, args...) }
func (l *Logger) InfoContext(_ context.Context, msg string, args ...any)  { l.Info(msg, args...) }
func (l *Logger) WarnContext(_ context.Context, msg string, args ...any)  { l.Warn(msg, args...) }
func (l *Logger) ErrorContext(_ context.Context, msg string, args ...any) { l.Error(msg, args...) }

// Convenience functions operating on the package default logger.

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
