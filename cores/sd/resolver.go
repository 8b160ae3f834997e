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
// Date: 2022-05-29 23:37:23
// LastEditors: Randyma
// LastEditTime: 2022-06-10 23:40:09
// Description: grpc 服务地址解析

package sd

import (
	"context"
	"sync"

	"google.golang.org/grpc/resolver"
)

type (
	// ResolverBuilder 用于grpc负载创建服务信息
	ResolverBuilder[T any, C any] struct {
		scheme   string
		finder   *Finder[T, C]
		criteria C
	}

	// finderResolver pushes the finder's nodes for criteria to a grpc
	// ClientConn whenever the registry changes.
	finderResolver[T any, C any] struct {
		finder    *Finder[T, C]
		criteria  C
		cc        resolver.ClientConn
		rn        chan struct{}
		ctx       context.Context
		ctxCancel context.CancelFunc
		wg        sync.WaitGroup
	}
)

// NewResolverBuilder returns a grpc resolver.Builder for scheme. Every
// connection built from it resolves to the addresses of the finder's nodes
// serving criteria.
func NewResolverBuilder[T any, C any](scheme string, finder *Finder[T, C], criteria C) *ResolverBuilder[T, C] {
	return &ResolverBuilder[T, C]{
		scheme:   scheme,
		finder:   finder,
		criteria: criteria,
	}
}

func (b *ResolverBuilder[T, C]) Build(target resolver.Target, cc resolver.ClientConn, opts resolver.BuildOptions) (resolver.Resolver, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &finderResolver[T, C]{
		finder:    b.finder,
		criteria:  b.criteria,
		cc:        cc,
		rn:        make(chan struct{}, 1),
		ctx:       ctx,
		ctxCancel: cancel,
	}

	// 注册通知
	r.finder.Registry().Register(r.rn)

	r.wg.Add(1)
	go r.watch()
	r.resolve()
	return r, nil
}

func (b *ResolverBuilder[T, C]) Scheme() string {
	return b.scheme
}

func (r *finderResolver[T, C]) watch() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-r.rn:
			r.resolve()
		}
	}
}

func (r *finderResolver[T, C]) resolve() {
	nodes := r.finder.GetAll(r.criteria)
	addrs := make([]resolver.Address, 0, len(nodes))
	for _, node := range nodes {
		if len(node.Host()) < 1 {
			continue
		}
		addrs = append(addrs, resolver.Address{Addr: node.Addr()})
	}

	if err := r.cc.UpdateState(resolver.State{Addresses: addrs}); err != nil {
		r.cc.ReportError(err)
	}
}

// ResolveNow forces a reconcile; the resulting registry update re-resolves.
func (r *finderResolver[T, C]) ResolveNow(o resolver.ResolveNowOptions) {
	r.finder.CheckForUpdate()
	select {
	case r.rn <- struct{}{}:
	default:
	}
}

func (r *finderResolver[T, C]) Close() {
	r.finder.Registry().Deregister(r.rn)
	r.ctxCancel()
	r.wg.Wait()
}
