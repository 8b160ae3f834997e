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
// Date: 2022-05-29 23:10:26
// LastEditors: Randyma
// LastEditTime: 2022-06-09 10:02:48
// Description: 节点信息缓存

package sd

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// snapshot is one published view of the registry. It is never modified after
// it has been stored.
type snapshot[T any] struct {
	nodes      []*ServiceNode[T]
	generation uint64
	updatedAt  time.Time
	skipped    int
}

// RegistryStats describes the state of a registry for diagnostics.
type RegistryStats struct {
	// Generation counts successful replacements, the initial empty snapshot
	// being generation 0.
	Generation uint64
	Nodes      int
	UpdatedAt  time.Time

	// Skipped is the number of members the last successful pass dropped
	// (vanished, empty, malformed, unhealthy or stale).
	Skipped int

	// Failures counts reconcile passes that could not reach the store.
	Failures uint64

	// LastError is the error of the most recent pass when that pass failed,
	// nil otherwise.
	LastError error
}

// Registry holds the current healthy members of one service. Readers never
// block: Nodes returns whatever snapshot was last published, and a new
// snapshot replaces the old one with a single pointer swap.
type Registry[T any] struct {
	service      Service
	deserializer Deserializer[T]
	current      atomic.Pointer[snapshot[T]]
	failures     atomic.Uint64
	lastErr      atomic.Error
	mutx         sync.RWMutex
	subscribers  map[chan<- struct{}]bool
}

// NewRegistry returns an empty registry for service.
func NewRegistry[T any](service Service, deserializer Deserializer[T]) *Registry[T] {
	r := &Registry[T]{
		service:      service,
		deserializer: deserializer,
		subscribers:  make(map[chan<- struct{}]bool),
	}

	r.current.Store(&snapshot[T]{nodes: []*ServiceNode[T]{}})
	return r
}

func (r *Registry[T]) Service() Service {
	return r.service
}

func (r *Registry[T]) Deserializer() Deserializer[T] {
	return r.deserializer
}

// Nodes returns the current healthy members. The returned slice is shared
// with other readers and must not be modified.
func (r *Registry[T]) Nodes() []*ServiceNode[T] {
	return r.current.Load().nodes
}

// Stats returns a diagnostic view of the registry.
func (r *Registry[T]) Stats() RegistryStats {
	s := r.current.Load()
	return RegistryStats{
		Generation: s.generation,
		Nodes:      len(s.nodes),
		UpdatedAt:  s.updatedAt,
		Skipped:    s.skipped,
		Failures:   r.failures.Load(),
		LastError:  r.lastErr.Load(),
	}
}

// Register adds a channel that receives a non-blocking notification after
// every successful replacement.
func (r *Registry[T]) Register(ch chan<- struct{}) {
	r.mutx.Lock()
	r.subscribers[ch] = true
	r.mutx.Unlock()
}

func (r *Registry[T]) Deregister(ch chan<- struct{}) {
	r.mutx.Lock()
	delete(r.subscribers, ch)
	r.mutx.Unlock()
}

// update publishes nodes as the new snapshot. Only the updater calls it.
func (r *Registry[T]) update(nodes []*ServiceNode[T], skipped int, now time.Time) {
	prev := r.current.Load()
	r.current.Store(&snapshot[T]{
		nodes:      nodes,
		generation: prev.generation + 1,
		updatedAt:  now,
		skipped:    skipped,
	})
	r.lastErr.Store(nil)

	r.mutx.RLock()
	for ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	r.mutx.RUnlock()
}

// fail records a pass that left the snapshot untouched.
func (r *Registry[T]) fail(err error) {
	r.failures.Inc()
	r.lastErr.Store(err)
}
