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

package sd

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deserializer turns the bytes stored under a member path into a node.
type Deserializer[T any] interface {
	Deserialize(data []byte) (*ServiceNode[T], error)
}

// DeserializerFunc adapts a function to the Deserializer interface.
type DeserializerFunc[T any] func(data []byte) (*ServiceNode[T], error)

func (f DeserializerFunc[T]) Deserialize(data []byte) (*ServiceNode[T], error) {
	return f(data)
}

// NodeRecord is the JSON layout providers publish for each member.
type NodeRecord[T any] struct {
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	NodeData             T      `json:"nodeData"`
	HealthcheckStatus    string `json:"healthcheckStatus"`
	LastUpdatedTimeStamp int64  `json:"lastUpdatedTimeStamp"`
}

// NewNodeRecord builds the wire record for a node. Used by providers and
// tests.
func NewNodeRecord[T any](host string, port int, data T, status HealthStatus, lastUpdated time.Time) NodeRecord[T] {
	r := NodeRecord[T]{
		Host:              host,
		Port:              port,
		NodeData:          data,
		HealthcheckStatus: string(status),
	}

	if !lastUpdated.IsZero() {
		r.LastUpdatedTimeStamp = lastUpdated.UnixMilli()
	}
	return r
}

// Marshal encodes the record as JSON.
func (r NodeRecord[T]) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

type jsonDeserializer[T any] struct{}

// JSONDeserializer decodes NodeRecord JSON payloads.
func JSONDeserializer[T any]() Deserializer[T] {
	return jsonDeserializer[T]{}
}

func (jsonDeserializer[T]) Deserialize(data []byte) (*ServiceNode[T], error) {
	var r NodeRecord[T]
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var lastUpdated time.Time
	if r.LastUpdatedTimeStamp > 0 {
		lastUpdated = time.UnixMilli(r.LastUpdatedTimeStamp)
	}

	return NewServiceNode(r.Host, r.Port, r.NodeData, ParseHealthStatus(r.HealthcheckStatus), lastUpdated), nil
}
