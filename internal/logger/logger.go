package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"service-nanny/internal/config"

	"github.com/rs/zerolog"
)

var (
	defaultLogger = zerolog.Nop()
)

// GetLogLevelFromString 将字符串转换为日志级别
func GetLogLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel // 默认级别
	}
}

/**
 * Initialize logging system according to running mode
 * @param {config.LogConfig} cfg - Log configuration
 * @param {bool} isServerMode - true for the daemon, false for CLI commands
 * @description
 * - "console" or empty path writes to stdout in server mode, stderr for the CLI
 * - A file path is appended to, the daemon also mirrors it to stdout
 * - Format "json" emits raw zerolog JSON, anything else uses the console writer
 */
func InitLogger(cfg *config.LogConfig, isServerMode bool) {
	var output io.Writer
	if cfg.Path == "console" || cfg.Path == "" {
		if isServerMode {
			output = os.Stdout
		} else {
			output = os.Stderr
		}
	} else {
		output = setupLogFileOutput(cfg.Path)
		if isServerMode {
			output = io.MultiWriter(os.Stdout, output)
		}
	}

	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
			NoColor:    cfg.Path != "console" && cfg.Path != "",
		}
	}

	defaultLogger = zerolog.New(output).
		Level(GetLogLevelFromString(cfg.Level)).
		With().
		Timestamp().
		Str("app", "service-nanny").
		Logger()
}

// SetOutput replaces the sink, used by tests to capture log lines.
func SetOutput(w io.Writer, level string) {
	defaultLogger = zerolog.New(w).Level(GetLogLevelFromString(level)).With().Timestamp().Logger()
}

// Z returns the underlying structured logger.
func Z() zerolog.Logger {
	return defaultLogger
}

// setupLogFileOutput 设置日志文件输出
func setupLogFileOutput(logPath string) io.Writer {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		return os.Stdout
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		return os.Stdout
	}
	return file
}

func Debug(v ...interface{}) {
	defaultLogger.Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	defaultLogger.Debug().Msgf(format, v...)
}

func Info(v ...interface{}) {
	defaultLogger.Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	defaultLogger.Info().Msgf(format, v...)
}

func Warn(v ...interface{}) {
	defaultLogger.Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...interface{}) {
	defaultLogger.Warn().Msgf(format, v...)
}

func Error(v ...interface{}) {
	defaultLogger.Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	defaultLogger.Error().Msgf(format, v...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(v ...interface{}) {
	fmt.Fprintf(os.Stderr, "FATAL: %v\n", fmt.Sprint(v...))
	defaultLogger.Error().Msg(fmt.Sprint(v...))
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", v...)
	defaultLogger.Error().Msgf(format, v...)
	os.Exit(1)
}
