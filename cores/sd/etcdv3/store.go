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

package etcdv3

import (
	"context"
	"fmt"
	"strings"

	"github.com/doublemo/ranger/cores/sd"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store implements sd.Store on etcd's flat keyspace. A path's children are
// the first segments of the keys under "path/". etcd has no directories, so
// a service without members simply has no keys and lists as empty instead of
// missing.
type Store struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	active  func() bool
}

// NewStore builds a store. active may be nil, in which case the store always
// reports an active session.
func NewStore(kv clientv3.KV, watcher clientv3.Watcher, active func() bool) *Store {
	if active == nil {
		active = func() bool { return true }
	}
	return &Store{kv: kv, watcher: watcher, active: active}
}

func (s *Store) Active() bool {
	return s.active()
}

// WatchChildren watches everything under path and fires once a child key is
// created or deleted. Value updates of existing children are ignored.
func (s *Store) WatchChildren(ctx context.Context, path string, fn func(sd.WatchEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := dir(path)
	wctx, cancel := context.WithCancel(ctx)
	wch := s.watcher.Watch(wctx, prefix, clientv3.WithPrefix())

	go func() {
		defer cancel()
		for wr := range wch {
			if wr.Canceled || wr.Err() != nil {
				if ctx.Err() == nil {
					fn(sd.WatchEvent{Type: sd.EventNotWatching, Path: path, Err: wr.Err()})
				}
				return
			}

			for _, ev := range wr.Events {
				if !isChild(prefix, string(ev.Kv.Key)) {
					continue
				}

				if ev.IsCreate() || ev.Type == clientv3.EventTypeDelete {
					fn(sd.WatchEvent{Type: sd.EventChildrenChanged, Path: path})
					return
				}
			}
		}
	}()
	return nil
}

func (s *Store) Children(ctx context.Context, path string) ([]string, error) {
	prefix := dir(path)
	resp, err := s.kv.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, unavailable(path, err)
	}

	seen := make(map[string]bool, len(resp.Kvs))
	children := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := strings.TrimPrefix(string(kv.Key), prefix)
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[:i]
		}

		if len(name) < 1 || seen[name] {
			continue
		}

		seen[name] = true
		children = append(children, name)
	}
	return children, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := s.kv.Get(ctx, path, clientv3.WithCountOnly())
	if err != nil {
		return false, unavailable(path, err)
	}
	return resp.Count > 0, nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.kv.Get(ctx, path)
	if err != nil {
		return nil, unavailable(path, err)
	}

	if len(resp.Kvs) < 1 {
		return nil, fmt.Errorf("%s: %w", path, sd.ErrNoNode)
	}

	if len(resp.Kvs[0].Value) < 1 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

func dir(path string) string {
	return strings.TrimSuffix(path, "/") + "/"
}

func isChild(prefix, key string) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}

	name := strings.TrimPrefix(key, prefix)
	return len(name) > 0 && !strings.Contains(name, "/")
}

// unavailable wraps etcd request failures. Anything failing a read from a
// reachable cluster is rare enough that it is treated the same way.
func unavailable(path string, err error) error {
	return fmt.Errorf("%s: %w: %v", path, sd.ErrStoreUnavailable, err)
}
