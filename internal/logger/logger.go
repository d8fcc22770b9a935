package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Debug flag to control debug logging
	debugEnabled = false
	// The shared sugared logger. No-op until Init is called.
	base = zap.NewNop().Sugar()
)

// Logger is the logging collaborator injected into components that must not
// reach for the package-level functions.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Init initializes the logger
func Init(debug bool) {
	debugEnabled = debug

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout),
			zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level && l < zapcore.ErrorLevel })),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr),
			zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })),
	)
	base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	if debugEnabled {
		Debug("Debug logging enabled")
	}
}

// Sync flushes buffered log entries. Call before exit.
func Sync() {
	_ = base.Sync()
}

// Debug logs a debug message if debug mode is enabled
func Debug(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// sugared adapts a zap SugaredLogger to Logger.
type sugared struct {
	s *zap.SugaredLogger
}

func (l sugared) Debug(format string, v ...interface{}) { l.s.Debugf(format, v...) }
func (l sugared) Info(format string, v ...interface{})  { l.s.Infof(format, v...) }
func (l sugared) Warn(format string, v ...interface{})  { l.s.Warnf(format, v...) }
func (l sugared) Error(format string, v ...interface{}) { l.s.Errorf(format, v...) }

// Named returns a component logger backed by the package logger.
// Call after Init; loggers obtained earlier stay no-op.
func Named(component string) Logger {
	return sugared{s: base.Named(component)}
}

// New wraps an existing zap logger, mostly for tests.
func New(l *zap.Logger) Logger {
	return sugared{s: l.Sugar()}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return sugared{s: zap.NewNop().Sugar()}
}
