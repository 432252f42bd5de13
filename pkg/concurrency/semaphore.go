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

// Package concurrency provides the counting semaphore and typed future
// primitives the rest of the runtime is built on.
package concurrency

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a bounded counter blocking primitive. It wraps a weighted
// semaphore of weight 1 per count so that Wait can be given a timeout or
// cancelled without a bespoke condition-variable implementation.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore creates a semaphore. initialCount is the number of permits
// immediately available to Wait.
func NewSemaphore(initialCount int64) *Semaphore {
	s := &Semaphore{sem: semaphore.NewWeighted(1 << 32)}
	// Pre-acquire everything except initialCount so that only initialCount
	// Wait calls can succeed before the next Post.
	if initialCount < 0 {
		initialCount = 0
	}
	_ = s.sem.TryAcquire((1 << 32) - initialCount)
	return s
}

// Post increments the semaphore by one, releasing one blocked (or future)
// Wait call.
func (s *Semaphore) Post() {
	s.sem.Release(1)
}

// Wait blocks until a permit is available, the context is done, or the
// semaphore fires; it returns true if a permit was obtained.
func (s *Semaphore) Wait(ctx context.Context) bool {
	return s.sem.Acquire(ctx, 1) == nil
}

// WaitTimeout blocks for at most timeout for a permit to become available.
// A timeout <= 0 polls once without blocking.
func (s *Semaphore) WaitTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		return s.sem.TryAcquire(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Wait(ctx)
}

// TryWait attempts to acquire a permit without blocking.
func (s *Semaphore) TryWait() bool {
	return s.sem.TryAcquire(1)
}
