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
// Date: 2022-06-09 11:20:41
// LastEditors: Randyma
// LastEditTime: 2022-06-09 11:58:03
// Description: 节点选择

package sd

import (
	"math/rand"

	"go.uber.org/atomic"
)

// NodeSelector picks one node out of a snapshot. Implementations must be safe
// for concurrent use and must return nil for an empty slice.
type NodeSelector[T any] interface {
	Select(nodes []*ServiceNode[T]) *ServiceNode[T]
}

// NodeSelectorFunc adapts a function to NodeSelector.
type NodeSelectorFunc[T any] func(nodes []*ServiceNode[T]) *ServiceNode[T]

func (f NodeSelectorFunc[T]) Select(nodes []*ServiceNode[T]) *ServiceNode[T] {
	return f(nodes)
}

// RandomNodeSelector picks uniformly at random.
type RandomNodeSelector[T any] struct{}

func (RandomNodeSelector[T]) Select(nodes []*ServiceNode[T]) *ServiceNode[T] {
	if len(nodes) < 1 {
		return nil
	}
	return nodes[rand.Intn(len(nodes))]
}

// RoundRobinNodeSelector cycles through the snapshot in order. The position
// is a plain counter, so after a membership change it continues from
// wherever it was modulo the new size.
type RoundRobinNodeSelector[T any] struct {
	counter atomic.Uint64
}

func (s *RoundRobinNodeSelector[T]) Select(nodes []*ServiceNode[T]) *ServiceNode[T] {
	if len(nodes) < 1 {
		return nil
	}
	index := (s.counter.Inc() - 1) % uint64(len(nodes))
	return nodes[index]
}

// ShardSelector narrows a snapshot to the nodes serving criteria. It returns
// an empty slice, never an error, when nothing matches.
type ShardSelector[T any, C any] interface {
	Nodes(criteria C, nodes []*ServiceNode[T]) []*ServiceNode[T]
}

// ShardSelectorFunc adapts a function to ShardSelector.
type ShardSelectorFunc[T any, C any] func(criteria C, nodes []*ServiceNode[T]) []*ServiceNode[T]

func (f ShardSelectorFunc[T, C]) Nodes(criteria C, nodes []*ServiceNode[T]) []*ServiceNode[T] {
	return f(criteria, nodes)
}

// MatchingShardSelector keeps the nodes whose payload satisfies Match.
type MatchingShardSelector[T any, C any] struct {
	Match func(criteria C, data T) bool
}

func (s MatchingShardSelector[T, C]) Nodes(criteria C, nodes []*ServiceNode[T]) []*ServiceNode[T] {
	matched := make([]*ServiceNode[T], 0, len(nodes))
	for _, node := range nodes {
		if s.Match(criteria, node.Data()) {
			matched = append(matched, node)
		}
	}
	return matched
}

// Unsharded is the criteria type of finders that do not shard.
type Unsharded struct{}

// AllNodesShardSelector ignores the criteria and returns the whole snapshot.
type AllNodesShardSelector[T any, C any] struct{}

func (AllNodesShardSelector[T, C]) Nodes(_ C, nodes []*ServiceNode[T]) []*ServiceNode[T] {
	return nodes
}
