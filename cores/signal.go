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
// Date: 2022-05-11 18:13:45
// LastEditors: randyma 435420057@qq.com
// LastEditTime: 2022-06-13 10:02:31
// Description: 系统信息处理

package cores

import (
	"context"
	"os"
	"os/signal"
)

type SignalCommand int

// 定义信息参数
const (
	SignalINT SignalCommand = (iota + 1) << 1
	SignalTERM
	SignalUSR1
	SignalUSR2
	SignalHUP
)

func (s SignalCommand) String() string {
	switch s {
	case SignalINT:
		return "INT"
	case SignalTERM:
		return "TERM"
	case SignalUSR1:
		return "USR1"
	case SignalUSR2:
		return "USR2"
	case SignalHUP:
		return "HUP"
	}
	return "UNKNOWN"
}

// Signal 处理系统信号, 阻塞直到 ctx 结束或 handle 返回 true
func Signal(ctx context.Context, handle func(SignalCommand) bool) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, watchedSignals...)
	defer signal.Stop(c)

	dispatch(ctx, c, handle)
}

func dispatch(ctx context.Context, c <-chan os.Signal, handle func(SignalCommand) bool) {
	for {
		select {
		case sig := <-c:
			cmd := toCommand(sig)
			if cmd == 0 {
				continue
			}

			if handle(cmd) {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
