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
// Date: 2022-05-29 22:38:20
// LastEditors: Randyma
// LastEditTime: 2022-06-08 21:12:05
// Description: 服务发现，节点信息处理

package sd

import (
	"errors"
	"net"
	"path"
	"strconv"
	"strings"
	"time"
)

// HealthStatus 节点健康状态
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	Healthy       HealthStatus = "healthy"
	Unhealthy     HealthStatus = "unhealthy"
)

// ParseHealthStatus maps the wire representation to a HealthStatus. Anything
// it does not recognise is HealthUnknown.
func ParseHealthStatus(s string) HealthStatus {
	switch strings.ToLower(s) {
	case "healthy":
		return Healthy
	case "unhealthy":
		return Unhealthy
	default:
		return HealthUnknown
	}
}

// ServiceNode is one instance of a service as published in the coordination
// store. Nodes are built fresh on every reconcile pass and never modified
// afterwards.
type ServiceNode[T any] struct {
	host        string
	port        int
	data        T
	status      HealthStatus
	lastUpdated time.Time
}

func NewServiceNode[T any](host string, port int, data T, status HealthStatus, lastUpdated time.Time) *ServiceNode[T] {
	return &ServiceNode[T]{
		host:        host,
		port:        port,
		data:        data,
		status:      status,
		lastUpdated: lastUpdated,
	}
}

func (n *ServiceNode[T]) Host() string {
	return n.host
}

func (n *ServiceNode[T]) Port() int {
	return n.port
}

// Addr returns host:port.
func (n *ServiceNode[T]) Addr() string {
	return net.JoinHostPort(n.host, strconv.Itoa(n.port))
}

// Data returns the caller defined payload.
func (n *ServiceNode[T]) Data() T {
	return n.data
}

func (n *ServiceNode[T]) Status() HealthStatus {
	return n.status
}

func (n *ServiceNode[T]) Healthy() bool {
	return n.status == Healthy
}

// LastUpdated is the time the provider last refreshed its record. Zero when
// the record carried no timestamp.
func (n *ServiceNode[T]) LastUpdated() time.Time {
	return n.lastUpdated
}

// PathFunc maps a namespace and service name to the coordination store path
// holding the service's members.
type PathFunc func(namespace, serviceName string) string

// DefaultPath lays services out as /{namespace}/{serviceName}.
func DefaultPath(namespace, serviceName string) string {
	return path.Join("/", namespace, serviceName)
}

var (
	ErrEmptyNamespace   = errors.New("sd: namespace is empty")
	ErrEmptyServiceName = errors.New("sd: service name is empty")
	ErrNilStore         = errors.New("sd: store is nil")
)

// Service identifies a discoverable service and the store session it is
// read from. The zero value is not usable; see NewService.
type Service struct {
	namespace string
	name      string
	path      string
	store     Store
}

// NewService 创建服务信息, pathFn 为空时使用 DefaultPath
func NewService(store Store, namespace, name string, pathFn PathFunc) (Service, error) {
	if store == nil {
		return Service{}, ErrNilStore
	}

	if len(namespace) < 1 {
		return Service{}, ErrEmptyNamespace
	}

	if len(name) < 1 {
		return Service{}, ErrEmptyServiceName
	}

	if pathFn == nil {
		pathFn = DefaultPath
	}

	return Service{
		namespace: namespace,
		name:      name,
		path:      pathFn(namespace, name),
		store:     store,
	}, nil
}

func (s Service) Namespace() string {
	return s.namespace
}

func (s Service) Name() string {
	return s.name
}

// Path is the parent path whose children are the service's members.
func (s Service) Path() string {
	return s.path
}

func (s Service) Store() Store {
	return s.store
}

// childPath joins the service path and a child name.
func (s Service) childPath(child string) string {
	if strings.HasSuffix(s.path, "/") {
		return s.path + child
	}
	return s.path + "/" + child
}
