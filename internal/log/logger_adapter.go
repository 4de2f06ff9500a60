package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"firestige.xyz/satcam/internal/config"
)

const (
	defaultPattern = "%time [%level] %caller: %msg%field%n"
	defaultTime    = "2006-01-02 15:04:05.000"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// FromLogrus wraps an existing logrus logger.
func FromLogrus(l *logrus.Logger) Logger {
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}

func newDefault() Logger {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTime})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stdout)
	return FromLogrus(l)
}

func initByConfig(cfg config.LogConfig) (Logger, *MultiWriter, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}
	timeLayout := cfg.Time
	if timeLayout == "" {
		timeLayout = defaultTime
	}

	l := logrus.New()
	l.SetFormatter(&formatter{pattern: pattern, time: timeLayout})
	l.SetLevel(level)
	l.SetReportCaller(cfg.ReportCaller)

	out := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(FileAppenderOpt{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}
	l.SetOutput(out)

	return FromLogrus(l), out, nil
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
