package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger writes structured events through zerolog. Warn and error events
// also feed the digest when one is attached.
type Logger struct {
	zl     zerolog.Logger
	digest *Digest
}

type Config struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	// Output is stdout, stderr or a file path opened for append.
	Output     string `yaml:"output" default:"stderr"`
	TimeFormat string `yaml:"time_format"`
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	out, tty, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: timeFormat,
			NoColor:    !tty || os.Getenv("NO_COLOR") != "",
		}
	}
	zl := zerolog.New(out).Level(level).
		With().
		Timestamp().
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(target string) (io.Writer, bool, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), nil
	case "stdout":
		return os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), nil
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, false, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open log file: %w", err)
	}
	return f, false, nil
}

// Nop discards everything.
func Nop() *Logger { return &Logger{zl: zerolog.Nop()} }

// With returns a child logger carrying fields on every event. The child
// shares the parent's digest.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.digestValue())
	}
	return &Logger{zl: ctx.Logger(), digest: l.digest}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) log(level zerolog.Level, msg string, fields []Field) {
	e := l.zl.WithLevel(level)
	for _, f := range fields {
		f.apply(e)
	}
	e.Msg(msg)

	if l.digest == nil || level < zerolog.WarnLevel {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}
	values := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		values[f.Key] = f.digestValue()
	}
	l.digest.Add(level.String(), msg, values, caller)
}

// AttachDigest starts aggregating warn and error events and publishing them.
// A previously attached digest is flushed first.
func (l *Logger) AttachDigest(cfg *DigestConfig) {
	if l.digest != nil {
		l.digest.Close()
	}
	l.digest = NewDigest(cfg)
}

// Close flushes and stops the digest.
func (l *Logger) Close() {
	if l.digest != nil {
		l.digest.Close()
		l.digest = nil
	}
}

// Field is one key/value pair attached to an event.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) apply(e *zerolog.Event) {
	switch v := f.Value.(type) {
	case nil:
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case bool:
		e.Bool(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	default:
		e.Interface(f.Key, v)
	}
}

func (f Field) digestValue() interface{} {
	if err, ok := f.Value.(error); ok {
		return err.Error()
	}
	return f.Value
}

func String(key, value string) Field { return Field{key, value} }

func Int(key string, value int) Field { return Field{key, value} }

func Float(key string, value float64) Field { return Field{key, value} }

// Error adds nothing to the event when err is nil.
func Error(err error) Field {
	if err == nil {
		return Field{Key: zerolog.ErrorFieldName}
	}
	return Field{zerolog.ErrorFieldName, err}
}

func Any(key string, value interface{}) Field { return Field{key, value} }

// Duration logs whole milliseconds.
func Duration(key string, d time.Duration) Field { return Field{key, int(d / time.Millisecond)} }

func Strings(key string, values []string) Field { return Field{key, strings.Join(values, ", ")} }

func Bool(key string, v bool) Field { return Field{key, v} }

// Date logs t as YYYY-MM-DD.
func Date(key string, t time.Time) Field { return Field{key, t.Format(time.DateOnly)} }
