package velox

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

func defaultRequestIDGen() string {
	return uuid.New().String()
}

// Logger is the structured logging interface debug instrumentation writes
// through. Key-value pairs follow log/slog's convention: alternating
// key, value, key, value...
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// SimpleLogger adapts log/slog to the Logger interface.
type SimpleLogger struct {
	logger *slog.Logger
}

// NewSimpleLogger returns a SimpleLogger writing to stderr at debug level.
func NewSimpleLogger() *SimpleLogger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &SimpleLogger{logger: slog.New(handler)}
}

// NewLogger adapts an existing *slog.Logger to the Logger interface.
func NewLogger(logger *slog.Logger) *SimpleLogger {
	return &SimpleLogger{logger: logger}
}

func (l *SimpleLogger) Debug(msg string, keyvals ...any) { l.logger.Debug(msg, keyvals...) }
func (l *SimpleLogger) Info(msg string, keyvals ...any)  { l.logger.Info(msg, keyvals...) }
func (l *SimpleLogger) Warn(msg string, keyvals ...any)  { l.logger.Warn(msg, keyvals...) }
func (l *SimpleLogger) Error(msg string, keyvals ...any) { l.logger.Error(msg, keyvals...) }

// DebugConfig controls which debug events get logged and how request IDs
// are generated. Disabled by default; WithDebug/WithSimpleLogger turn it on.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCircuit   bool
	LogCache     bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with every log category enabled
// but Enabled itself false, and the default UUID-based RequestIDGen.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCircuit:   true,
		LogCache:     true,
		LogRateLimit: true,
		RequestIDGen: defaultRequestIDGen,
	}
}
