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
// Date: 2022-05-11 18:01:10
// LastEditors: randyma 435420057@qq.com
// LastEditTime: 2022-06-12 15:20:44
// Description: 指标收集

package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/uber-go/tally/v4"
	"github.com/uber-go/tally/v4/prometheus"
	"go.uber.org/zap"
)

var ErrInvalidReportingFreq = errors.New("metrics reporting frequency must be at least 1 second")

// Configuration 指标配置信息
type Configuration struct {
	ReportingFreqSec int    `yaml:"reporting_freq_sec" json:"reporting_freq_sec" usage:"Frequency of metrics exports. Default is 60 seconds."`
	Namespace        string `yaml:"namespace" json:"namespace" usage:"Namespace for Prometheus metrics. Added as a 'namespace' tag to every metric when set."`
	PrometheusPort   int    `yaml:"prometheus_port" json:"prometheus_port" usage:"Port to expose Prometheus. If '0' Prometheus exports are disabled."`
	Prefix           string `yaml:"prefix" json:"prefix" usage:"Prefix for metric names. Default is 'ranger', empty string '' disables the prefix."`
}

func (c Configuration) Check() error {
	if c.ReportingFreqSec < 1 {
		return ErrInvalidReportingFreq
	}
	return nil
}

func NewConfiguration() Configuration {
	return Configuration{
		ReportingFreqSec: 60,
		Prefix:           "ranger",
	}
}

// Metrics 持有根 scope 与 prometheus 导出服务
type Metrics struct {
	logger   *zap.Logger
	scope    tally.Scope
	closer   io.Closer
	reporter prometheus.Reporter
	server   *http.Server
	listener net.Listener
}

// New 创建指标收集, PrometheusPort 大于0时启动 http 导出
func New(logger *zap.Logger, config Configuration) (*Metrics, error) {
	if err := config.Check(); err != nil {
		return nil, err
	}

	m := &Metrics{logger: logger}
	m.reporter = prometheus.NewReporter(prometheus.Options{
		Registerer: prom.NewRegistry(),
		OnRegisterError: func(err error) {
			logger.Error("Error registering Prometheus metric", zap.Error(err))
		},
	})

	tags := make(map[string]string)
	if config.Namespace != "" {
		tags["namespace"] = config.Namespace
	}

	m.scope, m.closer = tally.NewRootScope(tally.ScopeOptions{
		Prefix:          config.Prefix,
		Tags:            tags,
		CachedReporter:  m.reporter,
		Separator:       prometheus.DefaultSeparator,
		SanitizeOptions: &prometheus.DefaultSanitizerOpts,
	}, time.Duration(config.ReportingFreqSec)*time.Second)

	if config.PrometheusPort <= 0 {
		return m, nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.PrometheusPort))
	if err != nil {
		m.closer.Close()
		return nil, err
	}

	m.listener = listener
	m.server = &http.Server{
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 5120,
		Handler:        m.Handler(),
	}

	logger.Info("Starting Prometheus server for metrics requests", zap.Int("port", config.PrometheusPort))
	go func() {
		if err := m.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Prometheus listener failed", zap.Error(err))
		}
	}()
	return m, nil
}

// Scope 根 scope
func (m *Metrics) Scope() tally.Scope {
	return m.scope
}

// Handler prometheus 导出 handler, 响应经 gzip 压缩
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.reporter.HTTPHandler())
	return handlers.CompressHandler(mux)
}

// Addr 导出服务监听地址, 未启动时为空
func (m *Metrics) Addr() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Metrics) Stop() {
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("Prometheus listener shutdown failed", zap.Error(err))
		}
	}

	if err := m.closer.Close(); err != nil {
		m.logger.Error("Error closing metrics scope", zap.Error(err))
	}
}
