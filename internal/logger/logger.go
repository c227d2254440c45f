package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

var (
	globalLogger *Logger
	once         sync.Once

	defaultConfig = Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
)

// Logger wraps zerolog.Logger with a map-of-fields call style used across the codebase.
type Logger struct {
	zerolog.Logger
	level zerolog.Level
}

// LogFormat defines the available log formats
type LogFormat string

const (
	// FormatJSON writes one JSON object per line
	FormatJSON LogFormat = "json"
	// FormatConsole writes human readable lines
	FormatConsole LogFormat = "console"
)

func (f LogFormat) String() string {
	return string(f)
}

// ParseLogFormat parses a string into a LogFormat, defaulting to JSON.
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text", "pretty":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// Config holds the configuration for the logger
type Config struct {
	// Level is the log level (debug, info, warn, error)
	Level string
	// Format is the log format (json, console)
	Format LogFormat
	// Output is the output writer (default: os.Stdout)
	Output io.Writer
	// TimeFormat is the time format used by the console writer
	TimeFormat string
}

// Get returns the global logger, initializing it with defaults on first use.
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			globalLogger = build(defaultConfig)
		}
	})
	return globalLogger
}

// Setup initializes the global logger. Only the first call has an effect.
func Setup(cfg Config) {
	once.Do(func() {
		globalLogger = build(cfg)
	})
}

// ResetForTesting clears the global logger so tests can call Setup again.
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
}

// New builds a standalone logger without touching the global instance.
func New(cfg Config) *Logger {
	return build(cfg)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), level: zerolog.Disabled}
}

func build(cfg Config) *Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case FormatConsole:
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat})
	default:
		zl = zerolog.New(output)
	}
	zl = zl.Level(level).With().Timestamp().Logger()

	return &Logger{Logger: zl, level: level}
}

// GetLevel returns the level the logger was configured with.
func (l *Logger) GetLevel() zerolog.Level {
	if l == nil {
		return zerolog.NoLevel
	}
	return l.level
}

// With creates a child logger with the given fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		l = Get()
	}
	if len(fields) == 0 {
		return l
	}
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{Logger: ctx.Logger(), level: l.level}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return l.With(map[string]interface{}{"component": name})
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	if ev == nil {
		return
	}
	if len(fields) > 0 && len(fields[0]) > 0 {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level with optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.emit(l.Logger.Debug(), msg, fields)
}

// Info logs a message at Info level with optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.emit(l.Logger.Info(), msg, fields)
}

// Warn logs a message at Warn level with optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.emit(l.Logger.Warn(), msg, fields)
}

// Error logs a message at Error level with optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.emit(l.Logger.Error(), msg, fields)
}

// ContextKey is a type for context keys
type ContextKey string

// ContextKeyRequestID is the key used to store the request ID in the context
const ContextKeyRequestID ContextKey = "request_id"

type loggerKey struct{}

// NewContext returns a copy of ctx carrying the logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or nil.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return nil
	}
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return nil
}

// FromContextOr returns the logger stored in ctx, falling back to def.
func FromContextOr(ctx context.Context, def *Logger) *Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return def
}

// HTTPMiddleware logs every request handled by next. Each request gets an
// id, taken from X-Request-ID when present, and next sees a logger carrying
// it through FromContext.
func HTTPMiddleware(log *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rww := &responseWriterWrapper{ResponseWriter: w, status: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		reqLog := log.With(map[string]interface{}{"request_id": requestID})

		ctx := context.WithValue(r.Context(), ContextKeyRequestID, requestID)
		next.ServeHTTP(rww, r.WithContext(NewContext(ctx, reqLog)))

		ip := r.Header.Get("X-Forwarded-For")
		if ip == "" {
			ip = r.RemoteAddr
		}
		fields := map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"ip":       ip,
			"status":   rww.status,
			"duration": time.Since(start).String(),
		}
		reqLog.Info("HTTP request", fields)
	})
}

type responseWriterWrapper struct {
	http.ResponseWriter
	status int
}

func (r *responseWriterWrapper) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
