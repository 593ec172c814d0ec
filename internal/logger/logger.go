/**
 * Logger Implementation for TradeImport
 *
 * Structured logging using zerolog with key/value fields, a process
 * global logger, and an optional size-rotated log file.
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with key/value field helpers.
type Logger struct {
	logger zerolog.Logger
	config *Config
}

// Config configures the logger behavior.
type Config struct {
	Output        io.Writer
	Fields        map[string]interface{}
	Level         string
	TimeFormat    string
	Pretty        bool
	IncludeCaller bool
}

// DefaultConfig writes JSON at info level to stderr.
var DefaultConfig = &Config{
	Level:         "info",
	Output:        os.Stderr,
	Pretty:        false,
	IncludeCaller: false,
	Fields:        make(map[string]interface{}),
	TimeFormat:    time.RFC3339,
}

// New creates a new logger instance.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = config.TimeFormat

	output := config.Output
	if config.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: config.TimeFormat,
		}
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	for k, v := range config.Fields {
		zl = zl.With().Interface(k, v).Logger()
	}

	if config.IncludeCaller {
		zl = zl.With().CallerWithSkipFrameCount(3).Logger()
	}

	return &Logger{
		logger: zl,
		config: config,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop(), config: DefaultConfig}
}

// With creates a child logger with additional key/value fields.
func (l *Logger) With(fields ...interface{}) *Logger {
	child := l.logger.With()
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			child = child.Interface(key, fields[i+1])
		}
	}

	return &Logger{
		logger: child.Logger(),
		config: l.config,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Debug(), msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Info(), msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Warn(), msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
	}
	l.logEvent(event, msg, fields...)
}

func (l *Logger) logEvent(event *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, fields[i+1])
	}
	event.Msg(msg)
}

// LogRequest logs an HTTP request served or issued.
func (l *Logger) LogRequest(method, path string, statusCode int, duration time.Duration) {
	event := l.logger.Info()
	if statusCode >= 400 {
		event = l.logger.Warn()
	}
	if statusCode >= 500 {
		event = l.logger.Error()
	}

	event.
		Str("method", method).
		Str("path", path).
		Int("status", statusCode).
		Dur("duration", duration).
		Msg("Request completed")
}

var (
	globalMu sync.RWMutex
	global   *Logger
)

// Init initializes the global logger.
func Init(config *Config) *Logger {
	l := New(config)

	globalMu.Lock()
	global = l
	globalMu.Unlock()

	log.Logger = l.logger
	return l
}

// Global returns the global logger instance.
func Global() *Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()

	if l == nil {
		return Init(DefaultConfig)
	}
	return l
}

// FileWriter is an io.Writer appending to a file rotated by size.
type FileWriter struct {
	file       *os.File
	filename   string
	maxSize    int64
	maxBackups int
	mu         sync.Mutex
}

// NewFileWriter creates a new file writer.
func NewFileWriter(filename string, maxSize int64, maxBackups int) (*FileWriter, error) {
	fw := &FileWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}

	if err := fw.openFile(); err != nil {
		return nil, err
	}

	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.maxSize > 0 {
		info, err := fw.file.Stat()
		if err == nil && info.Size()+int64(len(p)) > fw.maxSize {
			if err := fw.rotate(); err != nil {
				return 0, err
			}
		}
	}

	return fw.file.Write(p)
}

// Close closes the file writer.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.file != nil {
		return fw.file.Close()
	}
	return nil
}

func (fw *FileWriter) openFile() error {
	if err := os.MkdirAll(filepath.Dir(fw.filename), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(fw.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	fw.file = file
	return nil
}

func (fw *FileWriter) rotate() error {
	if err := fw.file.Close(); err != nil {
		return err
	}

	for i := fw.maxBackups - 1; i > 0; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fw.filename, i), fmt.Sprintf("%s.%d", fw.filename, i+1))
	}

	if err := os.Rename(fw.filename, fw.filename+".1"); err != nil {
		return err
	}

	return fw.openFile()
}
