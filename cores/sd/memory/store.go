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

// Package memory is an in-process, watch-capable tree store. It behaves like
// a single ZooKeeper server: paths form a tree, children watches are one-shot
// and callbacks run on their own goroutine.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/doublemo/ranger/cores/sd"
	"go.uber.org/atomic"
)

type watcher struct {
	fn   func(sd.WatchEvent)
	done chan struct{}
	once sync.Once
}

func (w *watcher) fire(evt sd.WatchEvent) {
	w.once.Do(func() {
		close(w.done)
		go w.fn(evt)
	})
}

// Store 内存树存储
type Store struct {
	mu       sync.RWMutex
	nodes    map[string][]byte
	watchers map[string][]*watcher
	active   atomic.Bool
}

// New returns an empty, active store holding only the root path.
func New() *Store {
	s := &Store{
		nodes:    map[string][]byte{"/": nil},
		watchers: make(map[string][]*watcher),
	}
	s.active.Store(true)
	return s
}

// SetActive toggles the session. While inactive every read fails with
// sd.ErrStoreUnavailable.
func (s *Store) SetActive(active bool) {
	s.active.Store(active)
}

func (s *Store) Active() bool {
	return s.active.Load()
}

// Set stores data at p, creating p and any missing parents. Creating a path
// fires the children watches on its parent.
func (s *Store) Set(p string, data []byte) {
	p = clean(p)

	s.mu.Lock()
	var created []string
	for cur := p; ; cur = path.Dir(cur) {
		if _, ok := s.nodes[cur]; ok {
			break
		}
		s.nodes[cur] = nil
		created = append(created, cur)
		if cur == "/" {
			break
		}
	}

	s.nodes[p] = data
	var fired []*watcher
	for _, c := range created {
		fired = append(fired, s.takeLocked(path.Dir(c))...)
	}
	s.mu.Unlock()

	for _, w := range fired {
		w.fire(sd.WatchEvent{Type: sd.EventChildrenChanged, Path: p})
	}
}

// Delete removes p and everything below it.
func (s *Store) Delete(p string) {
	p = clean(p)

	s.mu.Lock()
	if _, ok := s.nodes[p]; !ok || p == "/" {
		s.mu.Unlock()
		return
	}

	prefix := p + "/"
	var deleted []*watcher
	for k := range s.nodes {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
			deleted = append(deleted, s.takeLocked(k)...)
		}
	}

	changed := s.takeLocked(path.Dir(p))
	s.mu.Unlock()

	for _, w := range deleted {
		w.fire(sd.WatchEvent{Type: sd.EventNodeDeleted, Path: p})
	}

	for _, w := range changed {
		w.fire(sd.WatchEvent{Type: sd.EventChildrenChanged, Path: path.Dir(p)})
	}
}

// Watchers returns the number of armed watches on p.
func (s *Store) Watchers(p string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers[clean(p)])
}

func (s *Store) WatchChildren(ctx context.Context, p string, fn func(sd.WatchEvent)) error {
	if !s.Active() {
		return sd.ErrSessionInactive
	}

	p = clean(p)
	w := &watcher{fn: fn, done: make(chan struct{})}

	s.mu.Lock()
	if _, ok := s.nodes[p]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", p, sd.ErrNoNode)
	}
	s.watchers[p] = append(s.watchers[p], w)
	s.mu.Unlock()

	go func() {
		select {
		case <-w.done:
		case <-ctx.Done():
			s.remove(p, w)
		}
	}()
	return nil
}

func (s *Store) Children(ctx context.Context, p string) ([]string, error) {
	if !s.Active() {
		return nil, sd.ErrSessionInactive
	}

	p = clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[p]; !ok {
		return nil, fmt.Errorf("%s: %w", p, sd.ErrNoNode)
	}

	prefix := p + "/"
	if p == "/" {
		prefix = p
	}

	children := make([]string, 0)
	for k := range s.nodes {
		if k == p || !strings.HasPrefix(k, prefix) {
			continue
		}

		name := strings.TrimPrefix(k, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		children = append(children, name)
	}

	sort.Strings(children)
	return children, nil
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	if !s.Active() {
		return false, sd.ErrSessionInactive
	}

	s.mu.RLock()
	_, ok := s.nodes[clean(p)]
	s.mu.RUnlock()
	return ok, nil
}

func (s *Store) Get(ctx context.Context, p string) ([]byte, error) {
	if !s.Active() {
		return nil, sd.ErrSessionInactive
	}

	p = clean(p)
	s.mu.RLock()
	data, ok := s.nodes[p]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", p, sd.ErrNoNode)
	}

	if len(data) < 1 {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// takeLocked detaches the watches armed on p. s.mu must be held.
func (s *Store) takeLocked(p string) []*watcher {
	ws := s.watchers[p]
	delete(s.watchers, p)
	return ws
}

func (s *Store) remove(p string, w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.watchers[p]
	for i, cur := range ws {
		if cur == w {
			s.watchers[p] = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}

	if len(s.watchers[p]) == 0 {
		delete(s.watchers, p)
	}
}

func clean(p string) string {
	return path.Clean("/" + p)
}
