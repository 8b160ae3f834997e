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

// updateSignal is a level-triggered dirty flag. Any number of raise calls
// made before the consumer drains it collapse into a single wakeup, and a
// raise made while the consumer is busy is kept for its next wait.
type updateSignal struct {
	c chan struct{}
}

func newUpdateSignal() *updateSignal {
	return &updateSignal{c: make(chan struct{}, 1)}
}

// raise marks the signal dirty. Never blocks.
func (s *updateSignal) raise() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// wait returns the channel the consumer selects on. Receiving clears the flag.
func (s *updateSignal) wait() <-chan struct{} {
	return s.c
}

// pending reports whether a raise has not been consumed yet.
func (s *updateSignal) pending() bool {
	return len(s.c) > 0
}
