// Package logger builds the zap logger shared by the command and the scanner.
//
// example:
//
//	log, _ := logger.New(logger.Options{Verbose: true})
//	defer log.Sync()
//	log.Debug("probe failed", zap.Int("port", 22))
package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where log lines go and how much is written.
type Options struct {
	// Verbose lowers the level from warn to debug.
	Verbose bool
	// File, when set, receives a copy of every line through a rotating writer.
	File string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// New returns a console logger, teed into a rotating file when opts.File is set.
func New(opts Options) *zap.Logger {
	level := zapcore.WarnLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(getEncoder(), zapcore.AddSync(console), level),
	}
	if opts.File != "" {
		// 文件里保留 debug, 便于事后排查
		cores = append(cores, zapcore.NewCore(getEncoder(), getFileWriter(opts.File), zapcore.DebugLevel))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func getEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.LineEnding = zapcore.DefaultLineEnding
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeTime = timeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeName = zapcore.FullNameEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}

func getFileWriter(path string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    60,
		MaxBackups: 6,
		MaxAge:     60,
		Compress:   false,
	})
}
