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
// Date: 2022-06-11 15:20:33
// LastEditors: Randyma
// LastEditTime: 2022-06-11 16:48:02
// Description: zookeeper 连接

package zookeeper

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

// ErrNoServers indicates an empty connection string.
var ErrNoServers = errors.New("zookeeper: no servers configured")

// Config zookeeper client
type Config struct {
	// Servers is a list of host:port. A comma separated connection string
	// can be passed through ParseServers.
	Servers        []string
	SessionTimeout time.Duration

	// ConnectTimeout bounds how long NewClient waits for the first session.
	ConnectTimeout time.Duration
}

// ParseServers splits a "host1:2181,host2:2181" connection string.
func ParseServers(connectionString string) []string {
	servers := make([]string, 0)
	for _, s := range strings.Split(connectionString, ",") {
		if s = strings.TrimSpace(s); len(s) > 0 {
			servers = append(servers, s)
		}
	}
	return servers
}

// Client owns a ZooKeeper session.
type Client struct {
	conn   *zk.Conn
	logger *zap.Logger
}

// NewClient connects to the ensemble and waits until a session is
// established, ctx is done or ConnectTimeout elapses. Reconnects after that
// are handled by the zk library.
func NewClient(ctx context.Context, logger *zap.Logger, config Config) (*Client, error) {
	if len(config.Servers) < 1 {
		return nil, ErrNoServers
	}

	if config.SessionTimeout == 0 {
		config.SessionTimeout = 10 * time.Second
	}

	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 15 * time.Second
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	conn, events, err := zk.Connect(config.Servers, config.SessionTimeout, zk.WithLogger(zap.NewStdLog(logger.Named("zk"))))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				conn.Close()
				return nil, zk.ErrClosing
			}

			if evt.State == zk.StateHasSession {
				c := &Client{conn: conn, logger: logger}
				go c.observe(events)
				return c, nil
			}

			if evt.State == zk.StateAuthFailed {
				conn.Close()
				return nil, zk.ErrAuthFailed
			}

		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		}
	}
}

// observe logs session state transitions until the connection is closed.
func (c *Client) observe(events <-chan zk.Event) {
	for evt := range events {
		if evt.Type != zk.EventSession {
			continue
		}

		switch evt.State {
		case zk.StateHasSession:
			c.logger.Info("ZooKeeper session established", zap.String("server", evt.Server))

		case zk.StateDisconnected:
			c.logger.Warn("ZooKeeper disconnected", zap.String("server", evt.Server))

		case zk.StateExpired:
			c.logger.Warn("ZooKeeper session expired")
		}
	}
}

// Store returns the coordination store view of this session.
func (c *Client) Store() *Store {
	return NewStore(c.conn)
}

func (c *Client) Close() {
	c.conn.Close()
}
