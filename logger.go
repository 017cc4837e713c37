package viralquill

import (
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Logger is the minimal structured logging surface used for debug output.
// The library stays unopinionated: bring your own implementation, use
// NewSimpleLogger for quick console output, or adapt zap via NewZapLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes leveled key/value lines through the standard library
// logger. Suitable for examples and local debugging.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a console logger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "viralquill ", log.LstdFlags|log.Lmsgprefix)}
}

func (s *SimpleLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.print("DEBUG", msg, keysAndValues)
}

func (s *SimpleLogger) Info(msg string, keysAndValues ...interface{}) {
	s.print("INFO", msg, keysAndValues)
}

func (s *SimpleLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.print("WARN", msg, keysAndValues)
}

func (s *SimpleLogger) Error(msg string, keysAndValues ...interface{}) {
	s.print("ERROR", msg, keysAndValues)
}

func (s *SimpleLogger) print(level, msg string, kv []interface{}) {
	s.l.Printf("%s %s%s", level, msg, formatKV(kv))
}

func formatKV(kv []interface{}) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 != 0 {
		fmt.Fprintf(&b, " %v=MISSING", kv[len(kv)-1])
	}
	return b.String()
}

// ZapLogger adapts a zap logger to the Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps an existing *zap.Logger for use as the client Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.s.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.s.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.s.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.s.Errorw(msg, keysAndValues...)
}
