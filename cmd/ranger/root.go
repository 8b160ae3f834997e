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
	"fmt"
	"runtime"
	"strings"

	"github.com/doublemo/ranger/internal/logger"
	"github.com/doublemo/ranger/kits/ranger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options 命令行参数, 覆盖配置文件中的同名项
type options struct {
	configFile  string
	backend     string
	servers     string
	namespace   string
	service     string
	environment string
	region      string
	selector    string
	logLevel    string
	logFormat   string
}

type app struct {
	opts          options
	config        ranger.Configuration
	log           *zap.Logger
	startupLogger *zap.Logger
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ranger",
		Short:        "Service discovery client for ZooKeeper and etcd",
		Long:         `Watch the members of a service published under /namespace/service and select nodes by environment or region.`,
		Version:      fmt.Sprintf("%s + %s + %s", version, commitid, builddate),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.opts.configFile, "config", "c", "", "Configuration file")
	flags.StringVarP(&a.opts.backend, "backend", "b", "", "Coordination store, 'zookeeper' or 'etcd'")
	flags.StringVarP(&a.opts.servers, "servers", "s", "", "Comma separated ZooKeeper servers or etcd endpoints")
	flags.StringVarP(&a.opts.namespace, "namespace", "n", "", "Service namespace")
	flags.StringVar(&a.opts.service, "service", "", "Service name")
	flags.StringVarP(&a.opts.environment, "environment", "e", "", "Only select members of this environment")
	flags.StringVar(&a.opts.region, "region", "", "Only select members of this region")
	flags.StringVar(&a.opts.selector, "selector", "", "Node selection strategy, 'random' or 'round_robin'")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level, 'debug', 'info', 'warn' or 'error'")
	flags.StringVar(&a.opts.logFormat, "log-format", "", "Log format, 'json', 'stackdriver' or 'console'")

	cmd.AddCommand(newWatchCommand(a), newSelectCommand(a))
	return cmd
}

// load 读取配置文件, 应用命令行参数并重建日志
func (a *app) load(cmd *cobra.Command) error {
	a.config = ranger.NewConfiguration()
	a.config.SourceFile = a.opts.configFile
	if err := a.config.Parse(); err != nil {
		return err
	}

	a.apply(cmd)
	if err := a.config.Check(); err != nil {
		return err
	}

	log, startupLogger, err := logger.New(a.config.Logger)
	if err != nil {
		return err
	}

	logger.Initializer(log, startupLogger)
	a.log, a.startupLogger = log, startupLogger
	a.startupLogger.Info("Ranger starting",
		zap.String("version", version),
		zap.String("runtime", runtime.Version()),
		zap.String("backend", a.config.Backend),
		zap.String("namespace", a.config.Service.Namespace),
		zap.String("service", a.config.Service.Name),
	)
	return nil
}

func (a *app) apply(cmd *cobra.Command) {
	flags := cmd.Flags()
	set := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}

	set("backend", &a.config.Backend, strings.ToLower(a.opts.backend))
	set("namespace", &a.config.Service.Namespace, a.opts.namespace)
	set("service", &a.config.Service.Name, a.opts.service)
	set("environment", &a.config.Service.Environment, a.opts.environment)
	set("region", &a.config.Service.Region, a.opts.region)
	set("selector", &a.config.Service.Selector, a.opts.selector)
	set("log-level", &a.config.Logger.Level, a.opts.logLevel)
	set("log-format", &a.config.Logger.Format, a.opts.logFormat)

	if flags.Changed("servers") {
		a.config.Zookeeper.ConnectionString = a.opts.servers
		a.config.Etcd.Endpoints = strings.Split(a.opts.servers, ",")
	}
}
