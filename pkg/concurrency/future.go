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
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
)

// Status is the lifecycle state of a Future.
type Status int32

const (
	// InProgress is the initial state.
	InProgress Status = iota
	// Success means onSuccess completed the future.
	Success
	// Errored means onError completed the future.
	Errored
)

// Future is a one-shot rendezvous carrying a single result value (T) or an
// error. It is the typed-future primitive C2 of the design: status
// transitions InProgress -> {Success|Errored} exactly once, and repeated
// completion attempts are no-ops. A Future with no useful result uses
// struct{} for T.
//
// Unlike a generic-result channel, Future exposes onSuccess/onError as
// explicit completion entry points (matching joynr's Future<Ts...>) and a
// blocking Get with an optional timeout, so callers that are already
// structured around request/reply correlation (the Dispatcher's reply
// caller table) don't need a second idiom.
type Future[T any] struct {
	mu     sync.Mutex
	status Status
	result T
	err    *joynrerrors.Error
	sema   *Semaphore
	fired  atomic.Bool

	// onCompletion, if set, is invoked exactly once when the future
	// transitions out of InProgress, after result/err are visible.
	onCompletion func(T, *joynrerrors.Error)
}

// NewFuture creates an in-progress future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{sema: NewSemaphore(0)}
}

// OnCompletion registers a callback fired once the future completes. If the
// future is already complete, it fires synchronously and immediately.
func (f *Future[T]) OnCompletion(cb func(T, *joynrerrors.Error)) {
	f.mu.Lock()
	if f.status == InProgress {
		f.onCompletion = cb
		f.mu.Unlock()
		return
	}
	result, err := f.result, f.err
	f.mu.Unlock()
	cb(result, err)
}

// onSuccessLocked records result and the Success status and returns the
// completion callback to run; it reports fired=false (and does nothing) if
// the future was already completed.
func (f *Future[T]) onSuccessLocked(result T) (fired bool, cb func(T, *joynrerrors.Error)) {
	if !f.fired.CompareAndSwap(false, true) {
		return false, nil
	}
	f.mu.Lock()
	f.result = result
	f.status = Success
	cb = f.onCompletion
	f.mu.Unlock()
	return true, cb
}

// OnSuccess completes the future with a result. A second call (after
// OnSuccess or OnError already fired) is a no-op, per the Future
// one-shot-completion invariant.
func (f *Future[T]) OnSuccess(result T) {
	fired, cb := f.onSuccessLocked(result)
	if !fired {
		return
	}
	f.sema.Post()
	if cb != nil {
		cb(result, nil)
	}
}

// OnError completes the future with an error. A second call is a no-op.
func (f *Future[T]) OnError(err *joynrerrors.Error) {
	if !f.fired.CompareAndSwap(false, true) {
		return
	}
	f.mu.Lock()
	f.err = err
	f.status = Errored
	cb := f.onCompletion
	f.mu.Unlock()
	f.sema.Post()
	if cb != nil {
		var zero T
		cb(zero, err)
	}
}

// Get blocks until the future completes, returning the result or error. A
// zero or negative timeout blocks indefinitely. After the first successful
// Get, the semaphore is re-posted so further Get/Wait calls remain
// non-blocking, per §4.3.
func (f *Future[T]) Get(timeout time.Duration) (T, *joynrerrors.Error) {
	var ok bool
	if timeout <= 0 {
		ok = f.sema.Wait(context.Background())
	} else {
		ok = f.sema.WaitTimeout(timeout)
	}
	if !ok {
		var zero T
		return zero, joynrerrors.New(joynrerrors.Timeout, "Future.Get timed out after %s", timeout)
	}
	f.sema.Post()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == Errored {
		var zero T
		return zero, f.err
	}
	return f.result, nil
}

// Wait blocks until the future completes or the timeout elapses, without
// retrieving the result. A zero or negative timeout blocks indefinitely.
func (f *Future[T]) Wait(timeout time.Duration) bool {
	var ok bool
	if timeout <= 0 {
		ok = f.sema.Wait(context.Background())
	} else {
		ok = f.sema.WaitTimeout(timeout)
	}
	if ok {
		f.sema.Post()
	}
	return ok
}

// StatusNow returns the current status without blocking.
func (f *Future[T]) StatusNow() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
