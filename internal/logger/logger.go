package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config controls where and how log lines are written.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string

	// Format is "text" (console encoder) or "json"
	Format string

	// Output is "stdout", "stderr" or a file path
	Output string
}

var (
	mu           sync.RWMutex
	atomicLevel  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar, _     = newSugar(Config{Format: "text", Output: "stdout"})
	currentLevel = LevelInfo
)

func (l Level) String() string {
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

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a level name into a Level. The boolean is false for
// unknown names.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

// SetLevel changes the minimum level. Unknown names leave the level unchanged.
func SetLevel(level string) {
	l, ok := ParseLevel(level)
	if !ok {
		return
	}

	mu.Lock()
	currentLevel = l
	mu.Unlock()

	atomicLevel.SetLevel(l.zapLevel())
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Init rebuilds the global logger from cfg.
//
// The previous logger is flushed before being replaced. An error is returned
// only when a file output cannot be opened; the previous logger stays active
// in that case.
func Init(cfg Config) error {
	next, err := newSugar(cfg)
	if err != nil {
		return err
	}

	SetLevel(cfg.Level)

	mu.Lock()
	prev := sugar
	sugar = next
	mu.Unlock()

	_ = prev.Sync()
	return nil
}

func newSugar(cfg Config) (*zap.SugaredLogger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %q: %w", cfg.Output, err)
		}
		sink = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, sink, atomicLevel)
	return zap.New(core).Sugar(), nil
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered log entries.
func Sync() error {
	return current().Sync()
}

func Debug(format string, v ...any) {
	current().Debugf(format, v...)
}

func Info(format string, v ...any) {
	current().Infof(format, v...)
}

func Warn(format string, v ...any) {
	current().Warnf(format, v...)
}

func Error(format string, v ...any) {
	current().Errorf(format, v...)
}

// Fields is a logger bound to a set of structured key/value pairs.
type Fields struct {
	s *zap.SugaredLogger
}

// With returns a logger that attaches keysAndValues to every entry.
func With(keysAndValues ...any) *Fields {
	return &Fields{s: current().With(keysAndValues...)}
}

func (f *Fields) Debug(format string, v ...any) { f.s.Debugf(format, v...) }
func (f *Fields) Info(format string, v ...any)  { f.s.Infof(format, v...) }
func (f *Fields) Warn(format string, v ...any)  { f.s.Warnf(format, v...) }
func (f *Fields) Error(format string, v ...any) { f.s.Errorf(format, v...) }
