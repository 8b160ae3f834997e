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
// Author: Randyma
// Date: 2022-06-09 14:05:12
// LastEditors: Randyma
// LastEditTime: 2022-06-10 23:02:37
// Description: 服务查找

package sd

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

var (
	ErrNilDeserializer  = errors.New("sd: deserializer is nil")
	ErrNilShardSelector = errors.New("sd: shard selector is nil")
	ErrNegativeInterval = errors.New("sd: refresh interval and stale timeout must not be negative")
)

// FinderConfig holds everything a Finder needs. Store, Namespace,
// ServiceName, Deserializer and ShardSelector are required.
type FinderConfig[T any, C any] struct {
	Store        Store
	Namespace    string
	ServiceName  string
	Path         PathFunc
	Deserializer Deserializer[T]

	ShardSelector ShardSelector[T, C]

	// NodeSelector picks among the nodes the shard selector returned.
	// Defaults to RandomNodeSelector.
	NodeSelector NodeSelector[T]

	RefreshInterval time.Duration
	StaleAfter      time.Duration

	Logger *zap.Logger
	Scope  tally.Scope
}

// Check validates the configuration.
func (c FinderConfig[T, C]) Check() error {
	switch {
	case c.Store == nil:
		return ErrNilStore

	case len(c.Namespace) < 1:
		return ErrEmptyNamespace

	case len(c.ServiceName) < 1:
		return ErrEmptyServiceName

	case c.Deserializer == nil:
		return ErrNilDeserializer

	case c.ShardSelector == nil:
		return ErrNilShardSelector

	case c.RefreshInterval < 0 || c.StaleAfter < 0:
		return ErrNegativeInterval
	}
	return nil
}

// Finder tracks the members of one service and selects among them.
type Finder[T any, C any] struct {
	id            string
	registry      *Registry[T]
	updater       *RegistryUpdater[T]
	shardSelector ShardSelector[T, C]
	nodeSelector  NodeSelector[T]
}

// NewFinder validates c and assembles a finder. The finder does not touch the
// store until Start.
func NewFinder[T any, C any](c FinderConfig[T, C]) (*Finder[T, C], error) {
	if err := c.Check(); err != nil {
		return nil, err
	}

	service, err := NewService(c.Store, c.Namespace, c.ServiceName, c.Path)
	if err != nil {
		return nil, err
	}

	if c.NodeSelector == nil {
		c.NodeSelector = RandomNodeSelector[T]{}
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scope := c.Scope
	if scope == nil {
		scope = tally.NoopScope
	}

	id := uuid.Must(uuid.NewV4()).String()
	registry := NewRegistry(service, c.Deserializer)
	updater := NewRegistryUpdater(registry,
		WithLogger(logger.With(zap.String("finder", id))),
		WithScope(scope.Tagged(map[string]string{"service": c.ServiceName})),
		WithRefreshInterval(c.RefreshInterval),
		WithStaleAfter(c.StaleAfter),
	)

	return &Finder[T, C]{
		id:            id,
		registry:      registry,
		updater:       updater,
		shardSelector: c.ShardSelector,
		nodeSelector:  c.NodeSelector,
	}, nil
}

// NewShardedFinder builds a finder whose Get narrows by criteria before
// selecting. c.ShardSelector is required.
func NewShardedFinder[T any, C any](c FinderConfig[T, C]) (*Finder[T, C], error) {
	if c.ShardSelector == nil {
		return nil, ErrNilShardSelector
	}
	return NewFinder(c)
}

// NewUnshardedFinder builds a finder whose Get ignores criteria.
func NewUnshardedFinder[T any](c FinderConfig[T, Unsharded]) (*Finder[T, Unsharded], error) {
	if c.ShardSelector == nil {
		c.ShardSelector = AllNodesShardSelector[T, Unsharded]{}
	}
	return NewFinder(c)
}

func (f *Finder[T, C]) ID() string {
	return f.id
}

func (f *Finder[T, C]) Start(ctx context.Context) error {
	return f.updater.Start(ctx)
}

func (f *Finder[T, C]) Stop() {
	f.updater.Stop()
}

// CheckForUpdate forces a reconcile pass outside of watch events.
func (f *Finder[T, C]) CheckForUpdate() {
	f.updater.CheckForUpdate()
}

func (f *Finder[T, C]) Registry() *Registry[T] {
	return f.registry
}

// Get returns one node serving criteria, or nil when none is available.
func (f *Finder[T, C]) Get(criteria C) *ServiceNode[T] {
	return f.nodeSelector.Select(f.GetAll(criteria))
}

// GetAll returns every node serving criteria.
func (f *Finder[T, C]) GetAll(criteria C) []*ServiceNode[T] {
	return f.shardSelector.Nodes(criteria, f.registry.Nodes())
}
