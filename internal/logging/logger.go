package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init builds the process logger: a console core plus a rotated JSON
// file core under logDir. jsonConsole switches the console core to JSON
// too, for deployments that ship stdout to a collector.
func Init(logDir string, jsonConsole bool) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "engine.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileSink, zapcore.InfoLevel)

	var consoleEnc zapcore.Encoder
	if jsonConsole {
		consoleEnc = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEnc = zapcore.NewConsoleEncoder(encoderConfig)
	}
	consoleCore := zapcore.NewCore(consoleEnc, zapcore.AddSync(os.Stdout), zapcore.DebugLevel)

	return zap.New(zapcore.NewTee(consoleCore, fileCore), zap.AddCaller()), nil
}
