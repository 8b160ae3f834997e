//go:build !windows
// +build !windows

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

package cores

import (
	"os"
	"syscall"
)

var watchedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP}

func toCommand(sig os.Signal) SignalCommand {
	switch sig {
	case syscall.SIGINT:
		return SignalINT

	case syscall.SIGTERM:
		return SignalTERM

	case syscall.SIGUSR1:
		return SignalUSR1

	case syscall.SIGUSR2:
		return SignalUSR2

	case syscall.SIGHUP:
		return SignalHUP
	}
	return 0
}
