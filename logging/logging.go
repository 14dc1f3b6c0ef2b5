// Package logging builds the zap logger shared by the client, the session
// manager and the job runner.
//
// Logs never go to stdout: stdout carries script output. The default sink is
// stderr, optionally teed to a rotated log file.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	srserrors "github.com/smnsjas/go-srsclient/errors"
)

// Output destinations.
const (
	OutputStderr = "stderr"
	OutputFile   = "file"
	OutputBoth   = "both"
)

// Encodings.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config describes where and how to log.
type Config struct {
	Level  string `yaml:"level" env:"SRS_LOG_LEVEL"`
	Format string `yaml:"format" env:"SRS_LOG_FORMAT"`
	Output string `yaml:"output" env:"SRS_LOG_OUTPUT"`

	// File rotation, used when Output is file or both.
	FilePath   string `yaml:"file_path" env:"SRS_LOG_FILE"`
	MaxSize    int    `yaml:"max_size" env:"SRS_LOG_MAX_SIZE"` // megabytes
	MaxBackups int    `yaml:"max_backups" env:"SRS_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"SRS_LOG_MAX_AGE"` // days
}

// DefaultConfig logs warnings and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		Format:     FormatConsole,
		Output:     OutputStderr,
		FilePath:   "srs-client.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, srserrors.ConfigInvalid("logging.level", "unknown level "+s)
}

// Validate checks the level, format and output.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case FormatConsole, FormatJSON, "":
	default:
		return srserrors.ConfigInvalid("logging.format", "must be console or json")
	}
	switch c.Output {
	case OutputStderr, "":
	case OutputFile, OutputBoth:
		if strings.TrimSpace(c.FilePath) == "" {
			return srserrors.ConfigInvalid("logging.file_path", "required for file output")
		}
	default:
		return srserrors.ConfigInvalid("logging.output", "must be stderr, file or both")
	}
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func newEncoder(format string, color bool) zapcore.Encoder {
	ec := encoderConfig()
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(ec)
	}
	if color {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

// New builds a logger writing to stderr and, when configured, a rotated file.
func New(cfg Config) (*zap.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with the terminal sink replaced by w.
func NewWithWriter(cfg Config, w io.Writer) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := ParseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.Output != OutputFile {
		cores = append(cores, zapcore.NewCore(
			newEncoder(cfg.Format, w == os.Stderr),
			zapcore.AddSync(w),
			level,
		))
	}
	if cfg.Output == OutputFile || cfg.Output == OutputBoth {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		// files never get color codes
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format, false), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
