package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the structured logger every component logs through. Args are
// alternating key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type SlogHandler struct {
	logger *slog.Logger
}

// New wraps a log/slog handler.
func New(h slog.Handler) *SlogHandler {
	return &SlogHandler{logger: slog.New(h)}
}

// Default logs warnings and errors as text on stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func (handler *SlogHandler) Error(msg string, args ...any) {
	handler.logger.Error(msg, args...)
}

func (handler *SlogHandler) Warn(msg string, args ...any) {
	handler.logger.Warn(msg, args...)
}

func (handler *SlogHandler) Info(msg string, args ...any) {
	handler.logger.Info(msg, args...)
}

func (handler *SlogHandler) Debug(msg string, args ...any) {
	handler.logger.Debug(msg, args...)
}

// LogBuild configures a zerolog backed Logger.
type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
	pretty bool
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Level(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

// Pretty renders human readable console lines instead of JSON.
func (build *LogBuild) Pretty(pretty bool) *LogBuild {
	build.pretty = pretty
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	w := logData.writer
	if build.pretty {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	logData.Logger = zerolog.New(w).Level(build.level).With().Timestamp().Logger()
	return
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

func (logData *LogData) Error(msg string, args ...any) {
	logData.Logger.Error().Fields(args).Msg(msg)
}

func (logData *LogData) Warn(msg string, args ...any) {
	logData.Logger.Warn().Fields(args).Msg(msg)
}

func (logData *LogData) Info(msg string, args ...any) {
	logData.Logger.Info().Fields(args).Msg(msg)
}

func (logData *LogData) Debug(msg string, args ...any) {
	logData.Logger.Debug().Fields(args).Msg(msg)
}
