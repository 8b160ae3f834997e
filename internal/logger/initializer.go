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
// Author: randyma
// Date: 2022-05-11 13:04:16
// LastEditors: randyma
// LastEditTime: 2022-06-12 11:05:10
// Description: 日志初始程序

package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mutx                 sync.RWMutex
	defaultConsoleLogger *zap.Logger
	defaultStartupLogger *zap.Logger
)

// Logger 获取日志 (运行日志, 启动日志)
func Logger() (*zap.Logger, *zap.Logger) {
	return ConsoleLogger(), StartupLogger()
}

// ConsoleLogger 运行日志
func ConsoleLogger() *zap.Logger {
	mutx.RLock()
	l := defaultConsoleLogger
	mutx.RUnlock()
	if l != nil {
		return l
	}

	mutx.Lock()
	defer mutx.Unlock()
	if defaultConsoleLogger == nil {
		defaultConsoleLogger = NewJSONLogger(os.Stdout, zapcore.InfoLevel, JSONFormat)
	}
	return defaultConsoleLogger
}

// StartupLogger 启动日志, 未初始化时与运行日志相同
func StartupLogger() *zap.Logger {
	mutx.RLock()
	l := defaultStartupLogger
	mutx.RUnlock()
	if l != nil {
		return l
	}
	return ConsoleLogger()
}

// Initializer 初始化日志
func Initializer(consoleLogger, startupLogger *zap.Logger) {
	mutx.Lock()
	defaultConsoleLogger = consoleLogger
	defaultStartupLogger = startupLogger
	mutx.Unlock()
}
