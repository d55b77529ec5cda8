package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

var (
	// errorsFile is the file where the errors are being written
	errorsFile      *os.File
	errorsFileMutex sync.Mutex
)

func init() {
	// default level: debug
	Init("debug", []string{"stdout"})
}

// Option modifies the logger configuration built by Init
type Option func(cfg *zap.Config)

// WithJSON encodes the logs as JSON objects, one per line
func WithJSON() Option {
	return func(cfg *zap.Config) {
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
}

// Init the logger with defined level. outputs defines the outputs where the
// logs will be sent, "stdout" if empty.  A path in outputs stores the logs in
// that file.
func Init(levelStr string, outputs []string, opts ...Option) {
	var level zap.AtomicLevel
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		panic(fmt.Errorf("Error on setting log level: %s", err))
	}
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	cfg := zap.Config{
		Level:            level,
		Encoding:         "console",
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",

			LevelKey:    "level",
			EncodeLevel: zapcore.CapitalColorLevelEncoder,

			TimeKey: "timestamp",
			EncodeTime: func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
				encoder.AppendString(ts.Local().Format(time.RFC3339))
			},
			EncodeDuration: zapcore.SecondsDurationEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,

			StacktraceKey: "stacktrace",
			LineEnding:    zapcore.DefaultLineEnding,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	//nolint:errcheck
	defer logger.Sync()
	log = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()

	log.Debugf("log level: %s", level)
}

// InitErrorsFile sets the file where error messages are also appended. An
// empty path disables it.
func InitErrorsFile(errorsPath string) error {
	errorsFileMutex.Lock()
	defer errorsFileMutex.Unlock()
	if errorsFile != nil {
		//nolint:errcheck
		errorsFile.Close()
		errorsFile = nil
	}
	if errorsPath == "" {
		return nil
	}
	f, err := os.OpenFile(errorsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) //nolint:gosec
	if err != nil {
		return err
	}
	errorsFile = f
	log.Infof("file where errors will be written: %s", errorsPath)
	return nil
}

func writeToErrorsFile(msg string) {
	errorsFileMutex.Lock()
	defer errorsFileMutex.Unlock()
	if errorsFile == nil {
		return
	}
	//nolint:errcheck
	errorsFile.WriteString(fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), msg))
}

// Error calls log.Error and stores the error message into the ErrorFile
func Error(args ...interface{}) {
	log.Error(args...)
	writeToErrorsFile(fmt.Sprint(args...))
}

// Infof calls log.Infof
func Infof(template string, args ...interface{}) {
	log.Infof(template, args...)
}

// Debugw calls log.Debugw
func Debugw(template string, kv ...interface{}) {
	log.Debugw(template, kv...)
}

// Infow calls log.Infow
func Infow(template string, kv ...interface{}) {
	log.Infow(template, kv...)
}

// Warnw calls log.Warnw
func Warnw(template string, kv ...interface{}) {
	log.Warnw(template, kv...)
}

// Errorw calls log.Errorw and stores the error message into the ErrorFile
func Errorw(template string, kv ...interface{}) {
	log.Errorw(template, kv...)
	writeToErrorsFile(fmt.Sprint(append([]interface{}{template, " "}, kv...)...))
}
