package log

import (
	"io"
	"sync"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppenderOpt configures the rotating file appender.
type FileAppenderOpt struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// MultiWriter fans a log line out to every registered writer. A failing
// writer does not stop the others. Writers added through AddFileAppender
// are owned by the MultiWriter and released by Close.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
	owned   []io.Closer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

// Add registers a writer the caller keeps ownership of.
func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, writer)
	m.mu.Unlock()
	return m
}

// AddFileAppender registers a lumberjack rotating file.
func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    options.MaxSize,
		MaxBackups: options.MaxBackups,
		MaxAge:     options.MaxAge,
		Compress:   options.Compress,
	}
	m.mu.Lock()
	m.writers = append(m.writers, writer)
	m.owned = append(m.owned, writer)
	m.mu.Unlock()
	return m
}

// Close closes the owned file appenders. A later Write through a logger that
// still holds this MultiWriter reopens the file.
func (m *MultiWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for _, c := range m.owned {
		err = multierr.Append(err, c.Close())
	}
	return err
}
