// Copyright joynr-sub007 Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSemaphoreWaitTimeoutWithNoPost(t *testing.T) {
	s := NewSemaphore(0)
	assert.False(t, s.WaitTimeout(20*time.Millisecond))
}

func TestSemaphorePostWakesWaiter(t *testing.T) {
	s := NewSemaphore(0)
	done := make(chan bool, 1)
	go func() {
		done <- s.WaitTimeout(time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Post()
	assert.True(t, <-done)
}

func TestSemaphoreInitialCountAllowsImmediateWait(t *testing.T) {
	s := NewSemaphore(1)
	assert.True(t, s.TryWait())
	assert.False(t, s.TryWait())
}
