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

package zookeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/doublemo/ranger/cores/sd"
	"github.com/go-zookeeper/zk"
)

// Conn is the part of *zk.Conn the store uses.
type Conn interface {
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Children(path string) ([]string, *zk.Stat, error)
	Exists(path string) (bool, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	State() zk.State
}

// Store implements sd.Store on a ZooKeeper connection.
type Store struct {
	conn Conn
}

func NewStore(conn Conn) *Store {
	return &Store{conn: conn}
}

func (s *Store) Active() bool {
	return s.conn.State() == zk.StateHasSession
}

func (s *Store) WatchChildren(ctx context.Context, path string, fn func(sd.WatchEvent)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, ch, err := s.conn.ChildrenW(path)
	if err != nil {
		return translate(path, err)
	}

	go func() {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fn(event(evt))

		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *Store) Children(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children, _, err := s.conn.Children(path)
	if err != nil {
		return nil, translate(path, err)
	}
	return children, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, _, err := s.conn.Exists(path)
	if err != nil {
		return false, translate(path, err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, _, err := s.conn.Get(path)
	if err != nil {
		return nil, translate(path, err)
	}

	if len(data) < 1 {
		return nil, nil
	}
	return data, nil
}

func event(evt zk.Event) sd.WatchEvent {
	out := sd.WatchEvent{Path: evt.Path, Err: evt.Err}
	switch evt.Type {
	case zk.EventNodeChildrenChanged:
		out.Type = sd.EventChildrenChanged

	case zk.EventNodeDeleted:
		out.Type = sd.EventNodeDeleted

	default:
		out.Type = sd.EventNotWatching
	}
	return out
}

// translate maps zk errors onto the sd error set.
func translate(path string, err error) error {
	switch {
	case errors.Is(err, zk.ErrNoNode):
		return fmt.Errorf("%s: %w", path, sd.ErrNoNode)

	case errors.Is(err, zk.ErrConnectionClosed),
		errors.Is(err, zk.ErrNoServer),
		errors.Is(err, zk.ErrSessionExpired),
		errors.Is(err, zk.ErrClosing):
		return fmt.Errorf("%s: %w: %v", path, sd.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", path, err)
}
