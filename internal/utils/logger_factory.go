// Package utils hosts shared infrastructure for logging, configuration
// loading, and output writers.
package utils

import (
	"errors"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	unsupportedLogLevelMessageConstant  = "unsupported log level"
	unsupportedLogFormatMessageConstant = "unsupported log format"
)

// LogLevel selects the minimum diagnostic severity emitted.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogFormat selects the diagnostic encoder.
type LogFormat string

// Supported log formats.
const (
	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

var (
	// ErrUnsupportedLogLevel indicates a log level outside the supported set.
	ErrUnsupportedLogLevel = errors.New(unsupportedLogLevelMessageConstant)
	// ErrUnsupportedLogFormat indicates a log format outside the supported set.
	ErrUnsupportedLogFormat = errors.New(unsupportedLogFormatMessageConstant)
)

// LoggerOutputs bundles the diagnostic logger with the console event logger.
// The console logger is a no-op unless the console format is selected.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers from textual level and format selections.
type LoggerFactory struct{}

// NewLoggerFactory constructs a LoggerFactory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLoggerOutputs builds logger outputs writing to standard error.
func (factory *LoggerFactory) CreateLoggerOutputs(requestedLogLevel LogLevel, requestedLogFormat LogFormat) (LoggerOutputs, error) {
	zapLevel, levelError := resolveZapLevel(requestedLogLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	encoderConfiguration := zap.NewProductionEncoderConfig()
	encoderConfiguration.EncodeTime = zapcore.ISO8601TimeEncoder

	var diagnosticEncoder zapcore.Encoder
	switch requestedLogFormat {
	case LogFormatStructured:
		diagnosticEncoder = zapcore.NewJSONEncoder(encoderConfiguration)
	case LogFormatConsole:
		consoleEncoderConfiguration := encoderConfiguration
		consoleEncoderConfiguration.EncodeLevel = zapcore.CapitalLevelEncoder
		diagnosticEncoder = zapcore.NewConsoleEncoder(consoleEncoderConfiguration)
	default:
		return LoggerOutputs{}, ErrUnsupportedLogFormat
	}

	errorOutput := zapcore.Lock(os.Stderr)
	diagnosticLogger := zap.New(zapcore.NewCore(diagnosticEncoder, errorOutput, zapLevel))

	consoleLogger := zap.NewNop()
	if requestedLogFormat == LogFormatConsole {
		consoleEncoderConfiguration := zap.NewDevelopmentEncoderConfig()
		consoleEncoderConfiguration.TimeKey = ""
		consoleEncoderConfiguration.LevelKey = ""
		consoleEncoderConfiguration.CallerKey = ""
		consoleLogger = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfiguration), errorOutput, zapLevel))
	}

	return LoggerOutputs{
		DiagnosticLogger: diagnosticLogger,
		ConsoleLogger:    consoleLogger,
	}, nil
}

func resolveZapLevel(requestedLogLevel LogLevel) (zapcore.Level, error) {
	switch requestedLogLevel {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InvalidLevel, ErrUnsupportedLogLevel
	}
}
