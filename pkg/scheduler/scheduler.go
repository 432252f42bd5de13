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

// Package scheduler runs submitted tasks after a delay, with cancellation
// by handle, for use by the subscription manager's end and
// missed-publication runnables.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/atomic"

	"istio.io/pkg/log"
)

var scope = log.RegisterScope("scheduler", "delayed task scheduler debugging", 0)

// Handle references a scheduled task. The zero value, InvalidHandle, means
// "no scheduled task".
type Handle int64

// InvalidHandle is the sentinel meaning no task is scheduled.
const InvalidHandle Handle = 0

type entry struct {
	handle   Handle
	deadline time.Time
	task     func()
	index    int
	canceled bool
}

// taskHeap is a min-heap of entries ordered by deadline, backing the
// scheduler's timer wheel.
type taskHeap []*entry

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler runs submitted tasks after a specified delay. A single worker
// goroutine drains a min-heap of pending deadlines; this matches the "small
// worker pool (>= 1)" resource model of §5 at pool size 1, which is
// sufficient since runnables themselves do no blocking I/O.
type Scheduler struct {
	mu       sync.Mutex
	pending  taskHeap
	byHandle map[Handle]*entry
	nextID   atomic.Int64
	wake     chan struct{}
	stopped  atomic.Bool
	done     chan struct{}
}

// New creates and starts a Scheduler.
func New() *Scheduler {
	s := &Scheduler{
		byHandle: make(map[Handle]*entry),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	heap.Init(&s.pending)
	go s.run()
	return s
}

// Schedule runs task after delay and returns a handle that Unschedule can
// cancel. Scheduling on a shut-down scheduler is a no-op that returns
// InvalidHandle.
func (s *Scheduler) Schedule(task func(), delay time.Duration) Handle {
	if s.stopped.Load() {
		scope.Debugf("schedule called after shutdown, ignoring")
		return InvalidHandle
	}
	s.mu.Lock()
	id := Handle(s.nextID.Inc())
	e := &entry{handle: id, deadline: time.Now().Add(delay), task: task}
	s.byHandle[id] = e
	heap.Push(&s.pending, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return id
}

// Unschedule removes a pending task if it has not yet started running. A
// task that has already started is allowed to finish; Unschedule does not
// wait for it.
func (s *Scheduler) Unschedule(h Handle) {
	if h == InvalidHandle {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byHandle[h]
	if !ok {
		return
	}
	e.canceled = true
	delete(s.byHandle, h)
}

// Shutdown prevents further scheduling and cancels all pending tasks. It
// returns once the worker goroutine has exited.
func (s *Scheduler) Shutdown() {
	if !s.stopped.CompareAndSwap(false, true) {
		<-s.done
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		if s.stopped.Load() {
			s.pending = nil
			s.byHandle = map[Handle]*entry{}
			s.mu.Unlock()
			return
		}
		var wait time.Duration
		if len(s.pending) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.pending[0].deadline)
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case <-timer.C:
			s.runDue()
		case <-s.wake:
		}
	}
}

func (s *Scheduler) runDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.pending[0].deadline.After(now) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.pending).(*entry)
		delete(s.byHandle, e.handle)
		s.mu.Unlock()

		if e.canceled {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					scope.Errorf("scheduled task %d panicked: %v", e.handle, r)
				}
			}()
			e.task()
		}()
	}
}
