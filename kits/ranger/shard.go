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

package ranger

import (
	"github.com/doublemo/ranger/cores/sd"
)

// ShardInfo is the nodeData a member publishes. The same type doubles as the
// selection criteria: empty criteria fields match anything.
type ShardInfo struct {
	Environment string `json:"environment"`
	Region      string `json:"region,omitempty"`
}

func (s ShardInfo) matches(data ShardInfo) bool {
	if s.Environment != "" && s.Environment != data.Environment {
		return false
	}
	return s.Region == "" || s.Region == data.Region
}

// ShardSelector selects members by ShardInfo.
func ShardSelector() sd.ShardSelector[ShardInfo, ShardInfo] {
	return sd.MatchingShardSelector[ShardInfo, ShardInfo]{
		Match: func(criteria ShardInfo, data ShardInfo) bool {
			return criteria.matches(data)
		},
	}
}

func nodeSelector(name string) sd.NodeSelector[ShardInfo] {
	if name == "round_robin" {
		return &sd.RoundRobinNodeSelector[ShardInfo]{}
	}
	return sd.RandomNodeSelector[ShardInfo]{}
}
