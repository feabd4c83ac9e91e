package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl     zerolog.Logger
	fields []Field
	// shared with every child created by With
	collector *atomic.Pointer[LogCollector]
}

type Config struct {
	Level      string // debug, info, warn, error, fatal, panic
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string // time format for log messages
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()

	return &Logger{zl: zl, collector: new(atomic.Pointer[LogCollector])}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		return file, nil
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	child := &Logger{zl: ctx.Logger(), collector: l.collector}
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) write(level zerolog.Level, msg string, fields []Field) {
	event := l.zl.WithLevel(level)
	for _, f := range fields {
		f.addTo(event)
	}
	event.Msg(msg)

	switch level {
	case zerolog.ErrorLevel:
		l.collect("error", msg, fields)
	case zerolog.WarnLevel:
		if c := l.loadCollector(); c != nil && c.config.IncludeWarn {
			l.collect("warn", msg, fields)
		}
	}
}

// collect hands the entry to the collector; frames: collect -> write -> Error/Warn -> caller.
func (l *Logger) collect(level, msg string, fields []Field) {
	c := l.loadCollector()
	if c == nil {
		return
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(3); ok {
		if i := strings.LastIndex(file, "EdgeScan/"); i >= 0 {
			file = file[i+len("EdgeScan/"):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	fieldMap := make(map[string]interface{}, len(l.fields)+len(fields))
	for _, f := range l.fields {
		fieldMap[f.Key] = f.value()
	}
	for _, f := range fields {
		fieldMap[f.Key] = f.value()
	}
	c.AddLog(level, msg, fieldMap, caller)
}

func (l *Logger) loadCollector() *LogCollector {
	if l.collector == nil {
		return nil
	}
	return l.collector.Load()
}

// AddCollector starts aggregating errors (and optionally warnings) for publication.
// A previous collector is flushed and closed.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if l.collector == nil {
		l.collector = new(atomic.Pointer[LogCollector])
	}
	if prev := l.collector.Swap(NewLogCollector(config)); prev != nil {
		prev.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if l.collector == nil {
		return
	}
	if prev := l.collector.Swap(nil); prev != nil {
		prev.Close()
	}
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt64
	kindBool
	kindDuration
	kindError
	kindStrings
	kindAny
)

// Field is one structured key/value pair.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	err  error
	any  interface{}
}

func (f Field) addTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.str)
	case kindInt64:
		e.Int64(f.Key, f.num)
	case kindBool:
		e.Bool(f.Key, f.num != 0)
	case kindDuration:
		e.Dur(f.Key, time.Duration(f.num))
	case kindError:
		e.AnErr(f.Key, f.err)
	case kindStrings:
		e.Strs(f.Key, f.any.([]string))
	default:
		e.Interface(f.Key, f.any)
	}
}

func (f Field) addToContext(c zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return c.Str(f.Key, f.str)
	case kindInt64:
		return c.Int64(f.Key, f.num)
	case kindBool:
		return c.Bool(f.Key, f.num != 0)
	case kindDuration:
		return c.Dur(f.Key, time.Duration(f.num))
	case kindError:
		return c.AnErr(f.Key, f.err)
	case kindStrings:
		return c.Strs(f.Key, f.any.([]string))
	default:
		return c.Interface(f.Key, f.any)
	}
}

// value is the plain Go value used for aggregation keys and published entries.
func (f Field) value() interface{} {
	switch f.kind {
	case kindString:
		return f.str
	case kindInt64:
		return f.num
	case kindBool:
		return f.num != 0
	case kindDuration:
		return time.Duration(f.num).String()
	case kindError:
		if f.err == nil {
			return nil
		}
		return f.err.Error()
	default:
		return f.any
	}
}

func String(key, value string) Field { return Field{Key: key, kind: kindString, str: value} }
func Int(key string, value int) Field { return Field{Key: key, kind: kindInt64, num: int64(value)} }
func Int32(key string, value int32) Field {
	return Field{Key: key, kind: kindInt64, num: int64(value)}
}
func Int64(key string, value int64) Field { return Field{Key: key, kind: kindInt64, num: value} }
func Uint(key string, value uint) Field   { return Field{Key: key, kind: kindInt64, num: int64(value)} }
func Bool(key string, value bool) Field {
	f := Field{Key: key, kind: kindBool}
	if value {
		f.num = 1
	}
	return f
}
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, num: int64(value)}
}
func Error(err error) Field                   { return Field{Key: zerolog.ErrorFieldName, kind: kindError, err: err} }
func Strings(key string, value []string) Field { return Field{Key: key, kind: kindStrings, any: value} }
func Any(key string, value interface{}) Field  { return Field{Key: key, kind: kindAny, any: value} }
