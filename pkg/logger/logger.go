// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogFile receives the JSON copy of every log line. Set it (or
// call SetLogFile) before the first GetLogger call; an empty path keeps
// logging on the console only.
var DefaultLogFile = "/tmp/u-ckc.log"

var (
	LogContainer     logContainer
	loggerInit       sync.Once
	simpleLoggerInit sync.Once
	level            = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

type logContainer struct {
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	loggerInit.Do(func() {
		l.logger = zap.New(getCombinedCore())
	})
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	simpleLoggerInit.Do(func() {
		l.simpleLogger = l.GetLogger().Sugar()
	})
	return l.simpleLogger
}

// SetLogFile changes where the JSON log goes. It has no effect once a
// logger has been created.
func (l *logContainer) SetLogFile(path string) {
	DefaultLogFile = path
}

// SetDebug switches both loggers between debug and info level.
func (l *logContainer) SetDebug(debug bool) {
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getLogWriter() (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(DefaultLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

func getConsoleCore() zapcore.Core {
	return zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), level)
}

func getCombinedCore() zapcore.Core {
	if DefaultLogFile == "" {
		return getConsoleCore()
	}
	w, err := getLogWriter()
	if err != nil {
		// The console still works, say so there and carry on.
		c := getConsoleCore()
		_ = c.Write(zapcore.Entry{Level: zapcore.WarnLevel, Message: "unable to open log file " + DefaultLogFile + ": " + err.Error()}, nil)
		return c
	}
	return zapcore.NewTee(getConsoleCore(), zapcore.NewCore(getJsonEncoder(), w, level))
}
