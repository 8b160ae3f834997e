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
// Date: 2022-06-12 16:30:41
// LastEditors: randyma
// LastEditTime: 2022-06-13 09:12:08
// Description: 服务发现观察

package ranger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/doublemo/ranger/cores/sd"
	"github.com/doublemo/ranger/cores/sd/etcdv3"
	"github.com/doublemo/ranger/cores/sd/zookeeper"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

// Dial 连接配置的协调存储, 返回存储和关闭函数
func Dial(ctx context.Context, logger *zap.Logger, config Configuration) (sd.Store, func(), error) {
	switch strings.ToLower(config.Backend) {
	case BackendZookeeper:
		client, err := zookeeper.NewClient(ctx, logger, zookeeper.Config{
			Servers:        zookeeper.ParseServers(config.Zookeeper.ConnectionString),
			SessionTimeout: time.Duration(config.Zookeeper.SessionTimeoutMs) * time.Millisecond,
			ConnectTimeout: time.Duration(config.Zookeeper.ConnectTimeoutMs) * time.Millisecond,
		})

		if err != nil {
			return nil, nil, err
		}
		return client.Store(), client.Close, nil

	case BackendEtcd:
		client, err := etcdv3.NewClient(ctx, etcdv3.Config{
			Addrs:         config.Etcd.Endpoints,
			Cert:          config.Etcd.Cert,
			Key:           config.Etcd.Key,
			CACert:        config.Etcd.CACert,
			DialTimeout:   time.Duration(config.Etcd.DialTimeout) * time.Second,
			DialKeepAlive: time.Duration(config.Etcd.DialKeepAliveTime) * time.Second,
			Username:      config.Etcd.Username,
			Password:      config.Etcd.Password,
		})

		if err != nil {
			return nil, nil, err
		}

		return client.Store(), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Error closing etcd client", zap.Error(err))
			}
		}, nil
	}
	return nil, nil, ErrUnknownBackend
}

// Server 观察一个服务的成员变化
type Server struct {
	config   Configuration
	logger   *zap.Logger
	finder   *sd.Finder[ShardInfo, ShardInfo]
	criteria ShardInfo

	// MaxStartElapsed bounds how long Serve keeps retrying the first
	// reconcile. Zero retries until ctx is done.
	MaxStartElapsed time.Duration

	mutx     sync.Mutex
	cancelFn context.CancelFunc
	done     chan struct{}
}

// New 创建观察服务. store 由调用方持有
func New(logger *zap.Logger, scope tally.Scope, store sd.Store, config Configuration) (*Server, error) {
	finder, err := sd.NewFinder(sd.FinderConfig[ShardInfo, ShardInfo]{
		Store:           store,
		Namespace:       config.Service.Namespace,
		ServiceName:     config.Service.Name,
		Deserializer:    sd.JSONDeserializer[ShardInfo](),
		ShardSelector:   ShardSelector(),
		NodeSelector:    nodeSelector(strings.ToLower(config.Service.Selector)),
		RefreshInterval: config.Service.RefreshInterval(),
		StaleAfter:      config.Service.StaleAfter(),
		Logger:          logger,
		Scope:           scope,
	})

	if err != nil {
		return nil, err
	}

	return &Server{
		config: config,
		logger: logger.With(zap.String("finder", finder.ID())),
		finder: finder,
		criteria: ShardInfo{
			Environment: config.Service.Environment,
			Region:      config.Service.Region,
		},
		MaxStartElapsed: 2 * time.Minute,
	}, nil
}

func (s *Server) Finder() *sd.Finder[ShardInfo, ShardInfo] {
	return s.finder
}

// Select 按配置条件选择一个节点
func (s *Server) Select() *sd.ServiceNode[ShardInfo] {
	return s.finder.Get(s.criteria)
}

// SelectAll 按配置条件返回全部节点
func (s *Server) SelectAll() []*sd.ServiceNode[ShardInfo] {
	return s.finder.GetAll(s.criteria)
}

// Serve starts the finder, retrying the first reconcile with exponential
// backoff while the store is unreachable or the service path is missing,
// then logs membership changes until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	changes := make(chan struct{}, 1)
	s.finder.Registry().Register(changes)
	if err := s.start(ctx); err != nil {
		s.finder.Registry().Deregister(changes)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mutx.Lock()
	s.cancelFn = cancel
	s.done = make(chan struct{})
	s.mutx.Unlock()

	go s.watch(ctx, changes)
	return nil
}

func (s *Server) start(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.MaxStartElapsed

	op := func() error {
		err := s.finder.Start(ctx)
		var startupErr *sd.StartupError
		if err != nil && !errors.As(err, &startupErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("Finder start failed, retrying", zap.Error(err), zap.Duration("next", next))
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

func (s *Server) watch(ctx context.Context, changes chan struct{}) {
	defer func() {
		s.finder.Registry().Deregister(changes)
		close(s.done)
	}()

	known := s.members()
	s.logger.Info("Service members", zap.Strings("nodes", known))
	for {
		select {
		case <-changes:
			current := s.members()
			added, removed := diff(known, current)
			if len(added) > 0 || len(removed) > 0 {
				stats := s.finder.Registry().Stats()
				s.logger.Info("Service membership changed",
					zap.Strings("added", added),
					zap.Strings("removed", removed),
					zap.Int("nodes", len(current)),
					zap.Uint64("generation", stats.Generation),
					zap.Int("skipped", stats.Skipped),
				)
			}
			known = current

		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) members() []string {
	nodes := s.SelectAll()
	addrs := make([]string, 0, len(nodes))
	for _, node := range nodes {
		addrs = append(addrs, node.Addr())
	}
	sort.Strings(addrs)
	return addrs
}

// diff returns the entries only present in b and only present in a.
func diff(a, b []string) (added, removed []string) {
	in := make(map[string]bool, len(a))
	for _, v := range a {
		in[v] = true
	}

	for _, v := range b {
		if !in[v] {
			added = append(added, v)
		}
		delete(in, v)
	}

	for _, v := range a {
		if in[v] {
			removed = append(removed, v)
		}
	}
	return
}

// Shutdown 停止观察, 可重复调用
func (s *Server) Shutdown() {
	s.mutx.Lock()
	cancel, done := s.cancelFn, s.done
	s.cancelFn = nil
	s.mutx.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.finder.Stop()
}
