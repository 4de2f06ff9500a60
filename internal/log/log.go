// Package log provides the process-wide structured logger.
package log

import (
	"sync"

	"firestige.xyz/satcam/internal/config"
)

// Logger is the logging facade used by every package. It hides the backing
// implementation so tests can substitute a capturing logger.
type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
	output *MultiWriter // set by Init, closed when replaced
)

// GetLogger returns the global logger. Before Init is called it returns a
// stdout logger at info level.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newDefault()
	}
	return logger
}

// Init replaces the global logger according to cfg. The file appender of a
// previous Init is closed once the new logger is installed.
func Init(cfg config.LogConfig) error {
	l, out, err := initByConfig(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	prev := output
	output = out
	mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// SetLogger installs l as the global logger.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}
