package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

// Config holds logger configuration
type Config struct {
	Level         zapcore.Level
	ConsoleOutput bool
	Console       io.Writer
	FileOutput    bool
	Filename      string
	MaxSize       int  // megabytes
	MaxAge        int  // days
	MaxBackups    int  // number of backups to keep
	Compress      bool // compress rotated files
	JSONFormat    bool // use JSON format for console output
}

const (
	DefaultFilename   = "logs/matchcounter.log"
	DefaultMaxSize    = 100 // megabytes
	DefaultMaxAge     = 30  // days
	DefaultMaxBackups = 10
	DefaultCompress   = true
)

// Option is a function that configures the logger
type Option func(*Config)

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "panic":
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithLevel sets the logging level
func WithLevel(level string) Option {
	return func(c *Config) { c.Level = ParseLevel(level) }
}

// WithConsoleOutput enables/disables console output
func WithConsoleOutput(enabled bool) Option {
	return func(c *Config) { c.ConsoleOutput = enabled }
}

// WithConsoleWriter redirects console output, stderr by default.
func WithConsoleWriter(w io.Writer) Option {
	return func(c *Config) { c.Console = w }
}

// WithFileOutput enables rotating file output when filename is not empty
func WithFileOutput(filename string) Option {
	return func(c *Config) {
		c.FileOutput = filename != ""
		if filename != "" {
			c.Filename = filename
		}
	}
}

// WithJSONFormat enables JSON format for console output (for API mode)
func WithJSONFormat(enabled bool) Option {
	return func(c *Config) { c.JSONFormat = enabled }
}

// WithRotationConfig sets the log rotation configuration
func WithRotationConfig(maxSize, maxAge, maxBackups int, compress bool) Option {
	return func(c *Config) {
		c.MaxSize = maxSize
		c.MaxAge = maxAge
		c.MaxBackups = maxBackups
		c.Compress = compress
	}
}

func defaultConfig() *Config {
	return &Config{
		Level:         zapcore.InfoLevel,
		ConsoleOutput: true,
		Console:       os.Stderr,
		Filename:      DefaultFilename,
		MaxSize:       DefaultMaxSize,
		MaxAge:        DefaultMaxAge,
		MaxBackups:    DefaultMaxBackups,
		Compress:      DefaultCompress,
	}
}

// New builds a logger from options without touching the process-wide one.
func New(opts ...Option) (*zap.Logger, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	var cores []zapcore.Core

	if config.ConsoleOutput {
		var consoleEncoder zapcore.Encoder
		if config.JSONFormat {
			jsonConfig := zap.NewProductionEncoderConfig()
			jsonConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			jsonConfig.StacktraceKey = ""
			consoleEncoder = zapcore.NewJSONEncoder(jsonConfig)
		} else {
			consoleConfig := zap.NewDevelopmentEncoderConfig()
			consoleConfig.EncodeTime = zapcore.RFC3339TimeEncoder
			consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			consoleConfig.EncodeCaller = zapcore.ShortCallerEncoder
			consoleEncoder = zapcore.NewConsoleEncoder(consoleConfig)
		}

		console := config.Console
		if console == nil {
			console = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), config.Level))
	}

	if config.FileOutput {
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}

		fileEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:      "ts",
			LevelKey:     "level",
			NameKey:      "logger",
			CallerKey:    "caller",
			MessageKey:   "msg",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.ISO8601TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		})

		cores = append(cores, zapcore.NewCore(
			fileEncoder,
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   config.Filename,
				MaxSize:    config.MaxSize,
				MaxAge:     config.MaxAge,
				MaxBackups: config.MaxBackups,
				Compress:   config.Compress,
			}),
			config.Level,
		))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no output configured for logger")
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// InitWithOptions builds a logger and installs it as the process-wide one.
func InitWithOptions(opts ...Option) (*zap.Logger, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	global = l
	mu.Unlock()
	return l, nil
}

// InitForCLI logs human-readable lines to stderr so stdout stays free for
// the report.
func InitForCLI(level, filename string) (*zap.Logger, error) {
	return InitWithOptions(
		WithLevel(level),
		WithConsoleOutput(true),
		WithJSONFormat(false),
		WithFileOutput(filename),
	)
}

// InitForAPI initializes logger for API with JSON console output
func InitForAPI(level, filename string) (*zap.Logger, error) {
	return InitWithOptions(
		WithLevel(level),
		WithConsoleOutput(true),
		WithConsoleWriter(os.Stdout),
		WithJSONFormat(true),
		WithFileOutput(filename),
	)
}

// Get returns the process-wide logger, a no-op one until Init is called.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global != nil {
		return global.Sync()
	}
	return nil
}

// Debug logs through the process-wide logger.
func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
