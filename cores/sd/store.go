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
// Date: 2022-05-29 23:15:36
// LastEditors: Randyma
// LastEditTime: 2022-06-08 21:40:11
// Description: 协调存储接口

package sd

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable is returned (wrapped) by stores that cannot reach
	// the backend: no session, closed connection, no server.
	ErrStoreUnavailable = errors.New("sd: coordination store unavailable")

	// ErrNoNode indicates the requested path does not exist.
	ErrNoNode = errors.New("sd: node does not exist")

	// ErrMalformedPayload is returned (wrapped) by deserializers when a node's
	// bytes cannot be decoded.
	ErrMalformedPayload = errors.New("sd: malformed node payload")
)

// EventType 监听事件类型
type EventType int

const (
	// EventChildrenChanged fires when a child is added to or removed from the
	// watched path.
	EventChildrenChanged EventType = iota + 1

	// EventNodeDeleted fires when the watched path itself is removed.
	EventNodeDeleted

	// EventNotWatching fires when the store drops the watch, e.g. because the
	// session expired.
	EventNotWatching
)

func (t EventType) String() string {
	switch t {
	case EventChildrenChanged:
		return "children_changed"
	case EventNodeDeleted:
		return "node_deleted"
	case EventNotWatching:
		return "not_watching"
	default:
		return "unknown"
	}
}

// WatchEvent is delivered to a WatchChildren callback.
type WatchEvent struct {
	Type EventType
	Path string
	Err  error
}

// Store is the slice of a hierarchical, watch-capable coordination store
// (ZooKeeper, etcd) the discovery engine reads from.
type Store interface {
	// WatchChildren registers a one-shot watch on the children of path. fn is
	// invoked at most once, on a goroutine owned by the store. Cancelling ctx
	// releases the watch without invoking fn.
	WatchChildren(ctx context.Context, path string, fn func(WatchEvent)) error

	// Children lists the names (not full paths) of the immediate children of
	// path. It returns an error wrapping ErrNoNode when path is missing and
	// ErrStoreUnavailable when the store cannot be reached.
	Children(ctx context.Context, path string) ([]string, error)

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Get returns the data stored at path. Empty data is returned as a nil
	// slice; a missing path is an error wrapping ErrNoNode.
	Get(ctx context.Context, path string) ([]byte, error)

	// Active reports whether the store session is currently usable.
	Active() bool
}

// StartupError is returned by Start when the initial reconcile could not
// obtain any data from the store.
type StartupError struct {
	Service string
	Path    string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("sd: start %s (%s): %v", e.Service, e.Path, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
