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
// Date: 2022-06-12 16:10:05
// LastEditors: randyma
// LastEditTime: 2022-06-12 18:42:51
// Description: Ranger配置定义

package ranger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/doublemo/ranger/internal/logger"
	"github.com/doublemo/ranger/internal/metrics"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	BackendZookeeper = "zookeeper"
	BackendEtcd      = "etcd"
)

var (
	ErrUnknownBackend   = errors.New("backend must be one of: zookeeper, etcd")
	ErrNoServers        = errors.New("no coordination servers configured")
	ErrNegativeDuration = errors.New("durations must not be negative")
	ErrUnknownSelector  = errors.New("selector must be one of: random, round_robin")
)

// ZookeeperConfiguration zookeeper 连接
type ZookeeperConfiguration struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string" usage:"Comma separated host:port list of the ZooKeeper ensemble."`
	SessionTimeoutMs int    `yaml:"session_timeout_ms" json:"session_timeout_ms" usage:"ZooKeeper session timeout in milliseconds. Default 10000."`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms" json:"connect_timeout_ms" usage:"How long to wait for the first session in milliseconds. Default 15000."`
}

// EtcdConfiguration etcd 连接
type EtcdConfiguration struct {
	Endpoints         []string `yaml:"endpoints" json:"endpoints" usage:"Etcd address a list of URLs."`
	DialTimeout       int      `yaml:"dial_timeout" json:"dial_timeout" usage:"The timeout for failing to establish a connection, in seconds."`
	DialKeepAliveTime int      `yaml:"dial_keep_alive_time" json:"dial_keep_alive_time" usage:"The time after which client pings the server to see if transport is alive, in seconds."`
	Username          string   `yaml:"username" json:"username" usage:"A user name for authentication"`
	Password          string   `yaml:"password" json:"password" usage:"A password for authentication"`
	Cert              string   `yaml:"cert" json:"cert" usage:"The client secure credentials"`
	Key               string   `yaml:"key" json:"key" usage:"The client secure credentials"`
	CACert            string   `yaml:"ca_cert" json:"ca_cert" usage:"The client secure credentials"`
}

// ServiceConfiguration 被发现的服务
type ServiceConfiguration struct {
	Namespace          string `yaml:"namespace" json:"namespace" usage:"Service namespace. Members live under /namespace/name."`
	Name               string `yaml:"name" json:"name" usage:"Service name."`
	Environment        string `yaml:"environment" json:"environment" usage:"Only select members published for this environment. Empty matches all."`
	Region             string `yaml:"region" json:"region" usage:"Only select members published for this region. Empty matches all."`
	Selector           string `yaml:"selector" json:"selector" usage:"Node selection strategy, 'random' or 'round_robin'. Default 'random'."`
	RefreshIntervalSec int    `yaml:"refresh_interval_sec" json:"refresh_interval_sec" usage:"Reconcile at least this often even without watch events. '0' disables it."`
	StaleAfterSec      int    `yaml:"stale_after_sec" json:"stale_after_sec" usage:"Ignore members not refreshed for this many seconds. '0' disables it."`
}

func (c ServiceConfiguration) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

func (c ServiceConfiguration) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

// Configuration 配置
type Configuration struct {
	SourceFile string                 `yaml:"-" json:"config" usage:"配置文件地址"`
	Backend    string                 `yaml:"backend" json:"backend" usage:"Coordination store, 'zookeeper' or 'etcd'. Default 'zookeeper'."`
	Logger     logger.Configuration   `yaml:"log" json:"log" usage:"日志信息配置"`
	Metrics    metrics.Configuration  `yaml:"metrics" json:"metrics" usage:"指标信息"`
	Zookeeper  ZookeeperConfiguration `yaml:"zookeeper" json:"zookeeper" usage:"ZooKeeper settings"`
	Etcd       EtcdConfiguration      `yaml:"etcd" json:"etcd" usage:"Etcd settings"`
	Service    ServiceConfiguration   `yaml:"service" json:"service" usage:"发现的服务"`
}

// Check 检查配置, 返回全部错误
func (c Configuration) Check() error {
	var err error
	switch strings.ToLower(c.Backend) {
	case BackendZookeeper:
		if len(strings.TrimSpace(c.Zookeeper.ConnectionString)) < 1 {
			err = multierr.Append(err, fmt.Errorf("zookeeper: %w", ErrNoServers))
		}

		if c.Zookeeper.SessionTimeoutMs < 0 || c.Zookeeper.ConnectTimeoutMs < 0 {
			err = multierr.Append(err, fmt.Errorf("zookeeper: %w", ErrNegativeDuration))
		}

	case BackendEtcd:
		if len(c.Etcd.Endpoints) < 1 {
			err = multierr.Append(err, fmt.Errorf("etcd: %w", ErrNoServers))
		}

		if c.Etcd.DialTimeout < 0 || c.Etcd.DialKeepAliveTime < 0 {
			err = multierr.Append(err, fmt.Errorf("etcd: %w", ErrNegativeDuration))
		}

	default:
		err = multierr.Append(err, fmt.Errorf("%q: %w", c.Backend, ErrUnknownBackend))
	}

	switch strings.ToLower(c.Service.Selector) {
	case "", "random", "round_robin":
	default:
		err = multierr.Append(err, fmt.Errorf("%q: %w", c.Service.Selector, ErrUnknownSelector))
	}

	if c.Service.RefreshIntervalSec < 0 || c.Service.StaleAfterSec < 0 {
		err = multierr.Append(err, fmt.Errorf("service: %w", ErrNegativeDuration))
	}

	return multierr.Combine(
		err,
		c.checkService(),
		c.Logger.Check(),
		c.Metrics.Check(),
	)
}

func (c Configuration) checkService() error {
	var err error
	if c.Service.Namespace == "" {
		err = multierr.Append(err, fmt.Errorf("service namespace: %w", errEmpty))
	}

	if c.Service.Name == "" {
		err = multierr.Append(err, fmt.Errorf("service name: %w", errEmpty))
	}
	return err
}

var errEmpty = errors.New("must not be empty")

// Parse 读取配置文件, 未指定文件时保持默认值
func (c *Configuration) Parse() error {
	if c.SourceFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.SourceFile)
	if err != nil {
		return err
	}

	source := c.SourceFile
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	c.SourceFile = source
	return nil
}

func NewConfiguration() Configuration {
	return Configuration{
		Backend: BackendZookeeper,
		Logger:  logger.NewConfiguration(),
		Metrics: metrics.NewConfiguration(),
		Zookeeper: ZookeeperConfiguration{
			ConnectionString: "127.0.0.1:2181",
			SessionTimeoutMs: 10_000,
			ConnectTimeoutMs: 15_000,
		},
		Etcd: EtcdConfiguration{
			Endpoints:         []string{"http://127.0.0.1:2379"},
			DialTimeout:       3,
			DialKeepAliveTime: 15,
		},
		Service: ServiceConfiguration{
			Selector: "random",
		},
	}
}
