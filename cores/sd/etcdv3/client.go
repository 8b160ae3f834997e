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
// Date: 2022-05-29 23:45:22
// LastEditors: Randyma
// LastEditTime: 2022-06-11 18:05:41
// Description: etcd 连接

package etcdv3

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// ErrNoAddrs indicates the client was configured without endpoints.
var ErrNoAddrs = errors.New("etcdv3: no endpoints configured")

// Config etcdv3 client
type Config struct {
	Addrs         []string
	Cert          string
	Key           string
	CACert        string
	DialTimeout   time.Duration
	DialKeepAlive time.Duration

	DialOptions []grpc.DialOption

	Username string
	Password string
}

// Client is a wrapper around the etcd client.
type Client struct {
	cli *clientv3.Client
}

// NewClient returns Client with a connection to the named machines. It will
// return an error if a connection to the cluster cannot be made.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if len(config.Addrs) < 1 {
		return nil, ErrNoAddrs
	}

	if config.DialTimeout == 0 {
		config.DialTimeout = 3 * time.Second
	}

	if config.DialKeepAlive == 0 {
		config.DialKeepAlive = 3 * time.Second
	}

	var (
		err    error
		tlscfg *tls.Config
	)

	if config.Cert != "" && config.Key != "" {
		tlsInfo := transport.TLSInfo{
			CertFile:      config.Cert,
			KeyFile:       config.Key,
			TrustedCAFile: config.CACert,
		}

		tlscfg, err = tlsInfo.ClientConfig()
		if err != nil {
			return nil, err
		}
	}

	cli, err := clientv3.New(clientv3.Config{
		Context:           ctx,
		Endpoints:         config.Addrs,
		DialTimeout:       config.DialTimeout,
		DialKeepAliveTime: config.DialKeepAlive,
		DialOptions:       config.DialOptions,
		TLS:               tlscfg,
		Username:          config.Username,
		Password:          config.Password,
	})

	if err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

// Active reports whether the underlying grpc connection can serve requests.
func (c *Client) Active() bool {
	conn := c.cli.ActiveConnection()
	if conn == nil {
		return false
	}

	switch conn.GetState() {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return false
	}
	return true
}

// Store returns the coordination store view of this client.
func (c *Client) Store() *Store {
	return NewStore(c.cli, c.cli, c.Active)
}

func (c *Client) Close() error {
	return c.cli.Close()
}
