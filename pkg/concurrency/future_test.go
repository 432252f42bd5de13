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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
)

func TestFutureOnSuccessThenGet(t *testing.T) {
	f := NewFuture[int]()
	f.OnSuccess(42)

	result, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.Equal(t, 42, result)
}

func TestFutureOnErrorThenGet(t *testing.T) {
	f := NewFuture[int]()
	f.OnError(joynrerrors.New(joynrerrors.InternalError, "boom"))

	_, err := f.Get(time.Second)
	require.NotNil(t, err)
	assert.Equal(t, joynrerrors.InternalError, err.Kind)
}

func TestFutureGetTimesOutWhenNeverCompleted(t *testing.T) {
	f := NewFuture[int]()
	_, err := f.Get(20 * time.Millisecond)
	require.NotNil(t, err)
	assert.Equal(t, joynrerrors.Timeout, err.Kind)
}

func TestFutureSecondCompletionIsNoop(t *testing.T) {
	f := NewFuture[int]()
	f.OnSuccess(1)
	f.OnSuccess(2)
	f.OnError(joynrerrors.New(joynrerrors.InternalError, "ignored"))

	result, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.Equal(t, 1, result)
}

func TestFutureMultipleGetCallsAreNotBlockedAfterCompletion(t *testing.T) {
	f := NewFuture[string]()
	f.OnSuccess("ok")

	for i := 0; i < 5; i++ {
		result, err := f.Get(10 * time.Millisecond)
		require.Nil(t, err)
		assert.Equal(t, "ok", result)
	}
}

func TestFutureOnCompletionCallback(t *testing.T) {
	f := NewFuture[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	f.OnCompletion(func(v int, err *joynrerrors.Error) {
		got = v
		wg.Done()
	})
	f.OnSuccess(7)
	wg.Wait()
	assert.Equal(t, 7, got)
}

func TestFutureConcurrentCompletionIsSingleShot(t *testing.T) {
	f := NewFuture[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			f.OnSuccess(v)
		}(i)
	}
	wg.Wait()

	result, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.GreaterOrEqual(t, result, 0)
}
