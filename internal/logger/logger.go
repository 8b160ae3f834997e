// Copyright (c) 2022 The Linna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author: randyma 435420057@qq.com
// Date: 2022-05-11 10:19:18
// LastEditors: randyma 435420057@qq.com
// LastEditTime: 2022-06-12 11:02:37
// Description: 日志处理与声明

package logger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// 定义日志输出格式
type LoggingFormat int8

const (
	// JSONFormat json格式输出
	JSONFormat LoggingFormat = iota - 1

	// StackdriverFormat Stackdriver
	StackdriverFormat

	// ConsoleFormat 终端可读格式, 用于命令行工具
	ConsoleFormat
)

var (
	ErrInvalidLevel  = errors.New("logger level invalid, must be one of: DEBUG, INFO, WARN, or ERROR")
	ErrInvalidFormat = errors.New("logger format invalid, must be one of: '', 'json', 'stackdriver' or 'console'")
	ErrNoLogFile     = errors.New("rotating log file is enabled but log file name is empty")
)

// Configuration 日志配置信息
type Configuration struct {
	Level      string `yaml:"level" json:"level" usage:"Log level to set. Valid values are 'debug', 'info', 'warn', 'error'. Default 'info'."`
	Stdout     bool   `yaml:"stdout" json:"stdout" usage:"Log to standard console output (as well as to a file if set). Default true."`
	File       string `yaml:"file" json:"file" usage:"Log output to a file (as well as stdout if set). Make sure that the directory and the file is writable."`
	Rotation   bool   `yaml:"rotation" json:"rotation" usage:"Rotate log files. Default is false."`
	MaxSize    int    `yaml:"max_size" json:"max_size" usage:"The maximum size in megabytes of the log file before it gets rotated. It defaults to 100 megabytes."`
	MaxAge     int    `yaml:"max_age" json:"max_age" usage:"The maximum number of days to retain old log files based on the timestamp encoded in their filename. The default is not to remove old log files based on age."`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" usage:"The maximum number of old log files to retain. The default is to retain all old log files (though MaxAge may still cause them to get deleted.)"`
	LocalTime  bool   `yaml:"local_time" json:"local_time" usage:"This determines if the time used for formatting the timestamps in backup files is the computer's local time. The default is to use UTC time."`
	Compress   bool   `yaml:"compress" json:"compress" usage:"This determines if the rotated log files should be compressed using gzip."`
	Format     string `yaml:"format" json:"format" usage:"Set logging output format. Can either be 'JSON', 'Stackdriver' or 'Console'. Default is 'JSON'."`
}

// Check 检查配置文件
func (c Configuration) Check() error {
	if _, err := switchZapLevel(c.Level); err != nil {
		return err
	}

	if _, err := switchLoggingFormat(c.Format); err != nil {
		return err
	}

	if c.Rotation && len(c.File) == 0 {
		return ErrNoLogFile
	}
	return nil
}

// NewConfiguration 默认配置
func NewConfiguration() Configuration {
	return Configuration{
		Level:   "info",
		Stdout:  true,
		MaxSize: 100,
		Format:  "json",
	}
}

// New 创建日志控制器, 返回 (运行日志, 启动日志)
func New(config Configuration) (*zap.Logger, *zap.Logger, error) {
	zapLevel, err := switchZapLevel(config.Level)
	if err != nil {
		return nil, nil, err
	}

	format, err := switchLoggingFormat(config.Format)
	if err != nil {
		return nil, nil, err
	}

	consoleLogger := NewJSONLogger(os.Stdout, zapLevel, format)

	var fileLogger *zap.Logger
	if config.Rotation {
		fileLogger, err = NewRotatingJSONFileLogger(config, zapLevel, format)
	} else {
		fileLogger, err = NewJSONFileLogger(config, zapLevel, format)
	}

	if err != nil {
		return nil, nil, err
	}

	if fileLogger != nil {
		multiLogger := NewMultiLogger(consoleLogger, fileLogger)

		if config.Stdout {
			RedirectStdLog(multiLogger)
			return multiLogger, multiLogger, nil
		}

		RedirectStdLog(fileLogger)
		return fileLogger, multiLogger, nil
	}

	RedirectStdLog(consoleLogger)
	return consoleLogger, consoleLogger, nil
}

// NewJSONLogger 创建日志输出. 名称沿用旧版, format 为 ConsoleFormat 时输出文本格式
func NewJSONLogger(output io.Writer, level zapcore.Level, format LoggingFormat) *zap.Logger {
	core := zapcore.NewCore(newEncoder(format), zapcore.Lock(zapcore.AddSync(output)), level)
	return zap.New(core, zap.AddCaller())
}

// NewRotatingJSONFileLogger 创建滚动式日志文件存储
func NewRotatingJSONFileLogger(config Configuration, level zapcore.Level, format LoggingFormat) (*zap.Logger, error) {
	if len(config.File) == 0 {
		return nil, ErrNoLogFile
	}

	logDir := filepath.Dir(config.File)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
	}

	// lumberjack.Logger is already safe for concurrent use, so we don't need to lock it.
	writeSyncer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    config.MaxSize,
		MaxAge:     config.MaxAge,
		MaxBackups: config.MaxBackups,
		LocalTime:  config.LocalTime,
		Compress:   config.Compress,
	})

	core := zapcore.NewCore(newEncoder(format), writeSyncer, level)
	return zap.New(core, zap.AddCaller()), nil
}

// NewJSONFileLogger file, 未配置文件时返回 nil
func NewJSONFileLogger(config Configuration, level zapcore.Level, format LoggingFormat) (*zap.Logger, error) {
	if len(config.File) == 0 {
		return nil, nil
	}

	output, err := os.OpenFile(config.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}
	return NewJSONLogger(output, level, format), nil
}

// NewMultiLogger 多日志创建
func NewMultiLogger(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, logger := range loggers {
		cores = append(cores, logger.Core())
	}

	teeCore := zapcore.NewTee(cores...)
	options := []zap.Option{zap.AddCaller()}
	return zap.New(teeCore, options...)
}

func newEncoder(format LoggingFormat) zapcore.Encoder {
	switch format {
	case StackdriverFormat:
		return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    StackdriverLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		})

	case ConsoleFormat:
		return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		})
	}

	return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}

// StackdriverLevelEncoder  stackdriver Level encoder
func StackdriverLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString("DEFAULT")
	}
}

func switchZapLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, ErrInvalidLevel
}

func switchLoggingFormat(format string) (LoggingFormat, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSONFormat, nil
	case "stackdriver":
		return StackdriverFormat, nil
	case "console":
		return ConsoleFormat, nil
	}
	return JSONFormat, ErrInvalidFormat
}

type RedirectStdLogWriter struct {
	logger *zap.Logger
}

func (r *RedirectStdLogWriter) Write(p []byte) (int, error) {
	s := string(bytes.TrimSpace(p))
	if strings.HasPrefix(s, "http: panic serving") {
		r.logger.Error(s)
	} else {
		r.logger.Info(s)
	}
	return len(p), nil
}

func RedirectStdLog(logger *zap.Logger) {
	log.SetFlags(0)
	log.SetPrefix("")
	skipLogger := logger.WithOptions(zap.AddCallerSkip(3))
	log.SetOutput(&RedirectStdLogWriter{skipLogger})
}
