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

package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
	"github.com/kr/pretty"
	. "github.com/onsi/gomega"

	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
	"github.com/bmwcarit/joynr-sub007/pkg/messaging"
)

type recordingListener struct {
	mu           sync.Mutex
	publications [][]byte
	errs         []*joynrerrors.Error
	notify       chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{notify: make(chan struct{}, 64)}
}

func (l *recordingListener) OnPublication(payload []byte) {
	l.mu.Lock()
	l.publications = append(l.publications, payload)
	l.mu.Unlock()
	l.notify <- struct{}{}
}

func (l *recordingListener) OnError(err *joynrerrors.Error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
	l.notify <- struct{}{}
}

func (l *recordingListener) waitForEvent(t *testing.T) {
	t.Helper()
	select {
	case <-l.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for listener event")
	}
}

type fakeRouter struct {
	mu              sync.Mutex
	addCalls        int
	removeCalls     int
	failAdd         bool
	failRemove      bool
}

func (r *fakeRouter) Route(messaging.Message) error { return nil }

func (r *fakeRouter) AddMulticastReceiver(multicastID, subscriberID, providerID string, onSuccess func(), onError func(error)) {
	r.mu.Lock()
	r.addCalls++
	fail := r.failAdd
	r.mu.Unlock()
	if fail {
		onError(assertErr)
		return
	}
	onSuccess()
}

func (r *fakeRouter) RemoveMulticastReceiver(multicastID, subscriberID, providerID string, onSuccess func(), onError func(error)) {
	r.mu.Lock()
	r.removeCalls++
	fail := r.failRemove
	r.mu.Unlock()
	if fail {
		onError(assertErr)
		return
	}
	onSuccess()
}

var assertErr = &routerError{"router rejected"}

type routerError struct{ msg string }

func (e *routerError) Error() string { return e.msg }

func TestRegisterUnicastGeneratesIDWhenEmpty(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()

	id, err := m.RegisterUnicast(&Request{SubscribeToName: "attr", Qos: Qos{ExpiryDateMs: NoExpiry}}, newRecordingListener())
	g.Expect(err).To(BeNil())
	g.Expect(id).NotTo(BeEmpty())
}

func TestRegisterUnicastRejectsPastExpiry(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()
	m.now = func() int64 { return 10_000 }

	_, err := m.RegisterUnicast(&Request{SubscribeToName: "attr", Qos: Qos{ExpiryDateMs: 1}}, newRecordingListener())
	g.Expect(err).NotTo(BeNil())
	g.Expect(joynrerrors.IsKind(err, joynrerrors.InvalidArgument)).To(BeTrue())
}

func TestDispatchUnicastPublicationDeliversToListener(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()
	listener := newRecordingListener()

	id, err := m.RegisterUnicast(&Request{SubscriptionID: "sub-1", SubscribeToName: "attr", Qos: Qos{ExpiryDateMs: NoExpiry}}, listener)
	g.Expect(err).To(BeNil())

	m.DispatchUnicastPublication(id, []byte("payload"))
	listener.waitForEvent(t)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	g.Expect(listener.publications).To(HaveLen(1))
	g.Expect(listener.publications[0]).To(Equal([]byte("payload")))
}

func TestDispatchUnicastPublicationDropsUnknownSubscription(t *testing.T) {
	m := New(&fakeRouter{})
	defer m.Shutdown()
	// Must not panic or block.
	m.DispatchUnicastPublication("does-not-exist", []byte("x"))
}

func TestUnregisterStopsFurtherDispatch(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()
	listener := newRecordingListener()

	id, err := m.RegisterUnicast(&Request{SubscriptionID: "sub-2", SubscribeToName: "attr", Qos: Qos{ExpiryDateMs: NoExpiry}}, listener)
	g.Expect(err).To(BeNil())

	m.Unregister(id)
	m.DispatchUnicastPublication(id, []byte("late"))

	select {
	case <-listener.notify:
		t.Fatal("listener should not have received a publication after unregister")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRegisterMulticastAddsReceiverAndDispatches(t *testing.T) {
	g := NewWithT(t)
	router := &fakeRouter{}
	m := New(router)
	defer m.Shutdown()
	listener := newRecordingListener()

	id, err := m.RegisterMulticast(&Request{SubscriptionID: "sub-mc", SubscribeToName: "event", Qos: Qos{ExpiryDateMs: NoExpiry}},
		"subscriber-1", "provider-1", nil, listener, func() {}, func(error) { t.Fatal("unexpected router error") })
	g.Expect(err).To(BeNil())

	router.mu.Lock()
	g.Expect(router.addCalls).To(Equal(1))
	router.mu.Unlock()

	multicastID := messaging.BuildMulticastID("provider-1", "event", nil)
	m.DispatchMulticastPublication(multicastID, []byte("fanout"))
	listener.waitForEvent(t)

	listener.mu.Lock()
	got := listener.publications
	listener.mu.Unlock()
	want := [][]byte{[]byte("fanout")}
	if diff, equal := messagediff.PrettyDiff(want, got); !equal {
		t.Errorf("unexpected publications delivered to multicast listener:\n%s\ngot: %# v", diff, pretty.Formatter(got))
	}

	_ = id
}

func TestRegisterMulticastSameIDRefreshesWithoutRouterCall(t *testing.T) {
	g := NewWithT(t)
	router := &fakeRouter{}
	m := New(router)
	defer m.Shutdown()
	listener := newRecordingListener()

	req := &Request{SubscriptionID: "sub-refresh", SubscribeToName: "event", Qos: Qos{ExpiryDateMs: NoExpiry}}
	_, err := m.RegisterMulticast(req, "subscriber-1", "provider-1", nil, listener, func() {}, func(error) {})
	g.Expect(err).To(BeNil())

	_, err = m.RegisterMulticast(req, "subscriber-1", "provider-1", nil, listener, func() {}, func(error) {})
	g.Expect(err).To(BeNil())

	router.mu.Lock()
	defer router.mu.Unlock()
	g.Expect(router.addCalls).To(Equal(1), "refreshing an unchanged multicastId must not re-call the router")
}

func TestRegisterMulticastRejectsInvalidPartitions(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()

	_, err := m.RegisterMulticast(&Request{SubscribeToName: "event", Qos: Qos{ExpiryDateMs: NoExpiry}},
		"subscriber-1", "provider-1", []string{"*", "a"}, newRecordingListener(), func() {}, func(error) {})
	g.Expect(err).NotTo(BeNil())
	g.Expect(joynrerrors.IsKind(err, joynrerrors.InvalidArgument)).To(BeTrue())
}

func TestDispatchMulticastPublicationMatchesWildcardSubscriber(t *testing.T) {
	g := NewWithT(t)
	router := &fakeRouter{}
	m := New(router)
	defer m.Shutdown()
	listener := newRecordingListener()

	_, err := m.RegisterMulticast(&Request{SubscriptionID: "sub-wild", SubscribeToName: "event", Qos: Qos{ExpiryDateMs: NoExpiry}},
		"subscriber-1", "provider-1", []string{"+"}, listener, func() {}, func(error) { t.Fatal("unexpected router error") })
	g.Expect(err).To(BeNil())

	published := messaging.BuildMulticastID("provider-1", "event", []string{"a"})
	m.DispatchMulticastPublication(published, []byte("fanout"))
	listener.waitForEvent(t)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	g.Expect(listener.publications).To(HaveLen(1))
	g.Expect(listener.publications[0]).To(Equal([]byte("fanout")))
}

func TestMissedPublicationAlgorithmEmitsErrorWhenGapExceedsAlert(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	defer m.Shutdown()
	listener := newRecordingListener()

	_, err := m.RegisterUnicast(&Request{
		SubscriptionID:  "sub-missed",
		SubscribeToName: "attr",
		Qos: Qos{
			ExpiryDateMs:         NoExpiry,
			PeriodMs:             20,
			AlertAfterIntervalMs: 20,
		},
	}, listener)
	g.Expect(err).To(BeNil())

	listener.waitForEvent(t)
	listener.mu.Lock()
	defer listener.mu.Unlock()
	g.Expect(listener.errs).NotTo(BeEmpty())
	g.Expect(joynrerrors.IsKind(listener.errs[0], joynrerrors.PublicationMissed)).To(BeTrue())
}

func TestShutdownDiscardsEntriesAndStopsScheduler(t *testing.T) {
	g := NewWithT(t)
	m := New(&fakeRouter{})
	listener := newRecordingListener()
	id, err := m.RegisterUnicast(&Request{SubscribeToName: "attr", Qos: Qos{ExpiryDateMs: NoExpiry}}, listener)
	g.Expect(err).To(BeNil())

	m.Shutdown()

	m.mu.Lock()
	g.Expect(m.entries).To(BeEmpty())
	m.mu.Unlock()
	g.Expect(m.sched.Schedule(func() {}, time.Millisecond)).To(BeZero())

	// A second Shutdown call must be a no-op, not a panic.
	m.Shutdown()

	_, regErr := m.RegisterUnicast(&Request{SubscribeToName: "attr"}, listener)
	g.Expect(regErr).NotTo(BeNil())
	g.Expect(joynrerrors.IsKind(regErr, joynrerrors.ShutdownInProgress)).To(BeTrue())

	_ = id
}
