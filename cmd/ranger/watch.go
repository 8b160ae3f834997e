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

package main

import (
	"context"

	"github.com/doublemo/ranger/cores"
	"github.com/doublemo/ranger/internal/metrics"
	"github.com/doublemo/ranger/kits/ranger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Log membership changes of a service until interrupted",
		Long: `Keep a live view of the service members and log every change.

SIGHUP forces a reconcile with the coordination store. SIGINT or SIGTERM stop
the watcher.

Examples:
  ranger watch -s zk1:2181,zk2:2181 -n prod --service billing
  ranger watch -b etcd -s http://127.0.0.1:2379 -n prod --service billing -e live`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context())
		},
	}
}

func (a *app) watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := ranger.Dial(ctx, a.log, a.config)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := metrics.New(a.log, a.config.Metrics)
	if err != nil {
		return err
	}
	defer m.Stop()

	s, err := ranger.New(a.log, m.Scope(), store, a.config)
	if err != nil {
		return err
	}
	defer s.Shutdown()

	if err := s.Serve(ctx); err != nil {
		return err
	}

	cores.Signal(ctx, func(sig cores.SignalCommand) bool {
		a.startupLogger.Info("Received signal", zap.Stringer("signal", sig))
		switch sig {
		case cores.SignalINT, cores.SignalTERM:
			return true

		case cores.SignalHUP:
			s.Finder().CheckForUpdate()
		}
		return false
	})

	a.startupLogger.Info("Ranger complete")
	return nil
}
