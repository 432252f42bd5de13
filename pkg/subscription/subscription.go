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

// Package subscription implements the Subscription Manager (C5): local
// registration of unicast and multicast subscriptions, the missed-publication
// runnable, publication dispatch, and coordinated shutdown.
package subscription

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"istio.io/pkg/log"

	"github.com/bmwcarit/joynr-sub007/internal/monitoring"
	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
	"github.com/bmwcarit/joynr-sub007/pkg/messaging"
	"github.com/bmwcarit/joynr-sub007/pkg/scheduler"
)

var scope = log.RegisterScope("subscription", "subscription manager debugging", 0)

// NoExpiry is the sentinel for "this subscription never expires".
const NoExpiry int64 = -1

// Qos bundles the timing parameters of a subscription, independent of
// whether it is unicast or multicast.
type Qos struct {
	ExpiryDateMs         int64
	PublicationTTLMs     int64
	PeriodMs             int64
	AlertAfterIntervalMs int64
}

// Listener receives publications and missed-publication notifications for
// one subscription. Implementations must not block the caller for long:
// the manager invokes it directly from the dispatch or scheduler goroutine.
type Listener interface {
	OnPublication(payload []byte)
	OnError(err *joynrerrors.Error)
}

// Request is the inOutRequest of the registration contract, mirroring the
// generated-code request object of the original implementation. The caller
// fills SubscribeToName and Qos; registration writes a generated
// SubscriptionID back into it when SubscriptionID is empty.
type Request struct {
	SubscriptionID  string
	SubscribeToName string
	Qos             Qos
}

type entry struct {
	mu sync.Mutex
	// deliverMu is held across each listener invocation in dispatchOne so
	// that deliveries to one subscription happen one at a time.
	deliverMu sync.Mutex

	subscriptionID        string
	multicastID           string // empty for a unicast subscription
	subscriberID           string
	providerParticipantID string
	listener              Listener
	qos                   Qos

	timeOfLastPublicationMs int64
	stopped                 bool

	endHandle    scheduler.Handle
	missedHandle scheduler.Handle
}

// Manager is the Subscription Manager (C5).
type Manager struct {
	mu            sync.Mutex
	entries       map[string]*entry
	byMulticastID map[string]map[string]struct{} // multicastID -> set of subscriptionIDs

	sched    *scheduler.Scheduler
	router   messaging.Router
	dispatch sync.WaitGroup
	shutdown atomic.Bool

	now func() int64 // overridable for tests
}

// New creates a Manager that schedules runnables on its own Scheduler and
// routes multicast receiver changes through router.
func New(router messaging.Router) *Manager {
	return &Manager{
		entries:       make(map[string]*entry),
		byMulticastID: make(map[string]map[string]struct{}),
		sched:         scheduler.New(),
		router:        router,
		now:           wallNowMs,
	}
}

func wallNowMs() int64 { return time.Now().UnixMilli() }

// RegisterUnicast registers an attribute or broadcast subscription. If
// req.SubscriptionID is empty, one is generated. Returns the effective
// subscription id, or an error if qos validation fails.
func (m *Manager) RegisterUnicast(req *Request, listener Listener) (string, *joynrerrors.Error) {
	if m.shutdown.Load() {
		return "", joynrerrors.New(joynrerrors.ShutdownInProgress, "subscription manager is shutting down")
	}
	now := m.now()
	if req.Qos.ExpiryDateMs != NoExpiry && req.Qos.ExpiryDateMs < now {
		return "", joynrerrors.New(joynrerrors.InvalidArgument, "subscription qos.expiryDateMs %d is in the past (now=%d)", req.Qos.ExpiryDateMs, now)
	}
	if req.SubscriptionID == "" {
		req.SubscriptionID = uuid.NewString()
	}

	m.unregisterLocked(req.SubscriptionID)

	e := &entry{
		subscriptionID:          req.SubscriptionID,
		listener:                listener,
		qos:                     req.Qos,
		timeOfLastPublicationMs: now,
	}
	m.mu.Lock()
	m.entries[e.subscriptionID] = e
	m.mu.Unlock()

	m.armRunnables(e)
	scope.Debugf("registered unicast subscription %s for %s", e.subscriptionID, req.SubscribeToName)
	return e.subscriptionID, nil
}

// RegisterMulticast registers a multicast subscription. onSuccess/onError
// report the Message Router's outcome for adding the receiver; the
// subscription stays registered locally even if the router call fails, so
// publications arriving through other means still reach the listener.
func (m *Manager) RegisterMulticast(req *Request, subscriberID, providerParticipantID string, partitions []string, listener Listener, onSuccess func(), onError func(error)) (string, *joynrerrors.Error) {
	if m.shutdown.Load() {
		return "", joynrerrors.New(joynrerrors.ShutdownInProgress, "subscription manager is shutting down")
	}
	now := m.now()
	if req.Qos.ExpiryDateMs != NoExpiry && req.Qos.ExpiryDateMs < now {
		return "", joynrerrors.New(joynrerrors.InvalidArgument, "subscription qos.expiryDateMs %d is in the past (now=%d)", req.Qos.ExpiryDateMs, now)
	}
	if !messaging.ValidatePartitions(partitions) {
		return "", joynrerrors.New(joynrerrors.InvalidArgument, "invalid multicast partitions %v", partitions)
	}
	if req.SubscriptionID == "" {
		req.SubscriptionID = uuid.NewString()
	}
	multicastID := messaging.BuildMulticastID(providerParticipantID, req.SubscribeToName, partitions)

	m.mu.Lock()
	prior, exists := m.entries[req.SubscriptionID]
	sameMulticast := exists && prior.multicastID == multicastID
	m.mu.Unlock()

	if exists && !sameMulticast {
		m.unregisterLocked(req.SubscriptionID)
	}

	if sameMulticast {
		prior.mu.Lock()
		prior.qos = req.Qos
		prior.listener = listener
		prior.mu.Unlock()
		scope.Debugf("refreshed multicast subscription %s (multicastId unchanged)", req.SubscriptionID)
		if onSuccess != nil {
			onSuccess()
		}
		return req.SubscriptionID, nil
	}

	e := &entry{
		subscriptionID:          req.SubscriptionID,
		multicastID:             multicastID,
		subscriberID:            subscriberID,
		providerParticipantID:   providerParticipantID,
		listener:                listener,
		qos:                     req.Qos,
		timeOfLastPublicationMs: now,
	}
	m.mu.Lock()
	m.entries[e.subscriptionID] = e
	m.mu.Unlock()
	m.armRunnables(e)

	m.router.AddMulticastReceiver(multicastID, subscriberID, providerParticipantID, func() {
		m.mu.Lock()
		set, ok := m.byMulticastID[multicastID]
		if !ok {
			set = make(map[string]struct{})
			m.byMulticastID[multicastID] = set
		}
		set[e.subscriptionID] = struct{}{}
		m.mu.Unlock()
		if onSuccess != nil {
			onSuccess()
		}
	}, func(err error) {
		scope.Warnf("router rejected multicast receiver for subscription %s: %v", e.subscriptionID, err)
		if onError != nil {
			onError(err)
		}
	})

	return e.subscriptionID, nil
}

// armRunnables schedules the missed-publication runnable (if the
// subscription is periodic with alerting) or the end runnable (if the
// subscription expires), per §4.2.
func (m *Manager) armRunnables(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.qos.AlertAfterIntervalMs > 0 && e.qos.PeriodMs > 0 {
		e.missedHandle = m.sched.Schedule(func() { m.checkMissedPublication(e.subscriptionID) }, time.Duration(e.qos.AlertAfterIntervalMs)*time.Millisecond)
		return
	}
	if e.qos.ExpiryDateMs != NoExpiry {
		delay := time.Duration(e.qos.ExpiryDateMs-m.now()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		e.endHandle = m.sched.Schedule(func() { m.end(e.subscriptionID) }, delay)
	}
}

// checkMissedPublication implements the missed-publication algorithm of
// §4.2: it re-arms itself unless the subscription has expired or stopped.
func (m *Manager) checkMissedPublication(subscriptionID string) {
	m.mu.Lock()
	e, ok := m.entries[subscriptionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.qos.ExpiryDateMs != NoExpiry && m.now() >= e.qos.ExpiryDateMs {
		e.stopped = true
		e.mu.Unlock()
		m.removeEntry(subscriptionID)
		return
	}

	now := m.now()
	gap := now - e.timeOfLastPublicationMs
	var delay time.Duration
	if gap < e.qos.AlertAfterIntervalMs {
		delay = time.Duration(e.qos.AlertAfterIntervalMs-gap) * time.Millisecond
	} else {
		monitoring.SubscriptionMissedPublications.Inc()
		listener := e.listener
		e.mu.Unlock()
		if listener != nil {
			listener.OnError(joynrerrors.New(joynrerrors.PublicationMissed, "missed publication for subscription %s", subscriptionID))
		}
		e.mu.Lock()
		mod := gap % e.qos.PeriodMs
		delay = time.Duration(e.qos.AlertAfterIntervalMs-mod) * time.Millisecond
	}
	if delay < 0 {
		delay = 0
	}
	e.missedHandle = m.sched.Schedule(func() { m.checkMissedPublication(subscriptionID) }, delay)
	e.mu.Unlock()
}

func (m *Manager) end(subscriptionID string) {
	m.removeEntry(subscriptionID)
}

// touchSubscriptionState records wall_now_ms() as the time of the most
// recent publication, under the entry's lock, before listener invocation.
func (m *Manager) touchSubscriptionState(e *entry) {
	e.mu.Lock()
	e.timeOfLastPublicationMs = m.now()
	e.mu.Unlock()
}

// DispatchUnicastPublication hands payload to the listener registered for
// subscriptionID. Unknown ids are logged and dropped.
func (m *Manager) DispatchUnicastPublication(subscriptionID string, payload []byte) {
	m.mu.Lock()
	e, ok := m.entries[subscriptionID]
	m.mu.Unlock()
	if !ok {
		scope.Debugf("publication for unknown subscription %s dropped", subscriptionID)
		return
	}
	m.dispatchOne(e, payload, nil)
}

// DispatchUnicastError hands err to the listener registered for
// subscriptionID. A PublicationMissed error for an already-stopped
// subscription is silently dropped.
func (m *Manager) DispatchUnicastError(subscriptionID string, err *joynrerrors.Error) {
	m.mu.Lock()
	e, ok := m.entries[subscriptionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped && joynrerrors.IsKind(err, joynrerrors.PublicationMissed) {
		return
	}
	m.dispatchOne(e, nil, err)
}

// DispatchMulticastPublication fans payload out to every subscription whose
// registered multicastId matches the published one, per the wildcard rule
// in §3/§9: a subscriber registered with "+"/"*" partitions matches any
// concrete published id whose prefix agrees, not just an exact id. Order
// across listeners is not guaranteed.
func (m *Manager) DispatchMulticastPublication(multicastID string, payload []byte) {
	m.mu.Lock()
	var ids []string
	for pattern, set := range m.byMulticastID {
		if !messaging.MatchesMulticastID(pattern, multicastID) {
			continue
		}
		for id := range set {
			ids = append(ids, id)
		}
	}
	entries := make([]*entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()

	// Fan-out order across listeners is explicitly unspecified (§5), so the
	// group runs them concurrently; each entry still serializes internally
	// via dispatchOne's per-entry delivery lock.
	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			m.dispatchOne(e, payload, nil)
			return nil
		})
	}
	_ = g.Wait()
}

// dispatchOne serializes delivery to a single listener: within one
// subscription, invocations happen one at a time (§5).
func (m *Manager) dispatchOne(e *entry, payload []byte, err *joynrerrors.Error) {
	m.dispatch.Add(1)
	defer m.dispatch.Done()

	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	listener := e.listener
	e.mu.Unlock()

	m.touchSubscriptionState(e)
	if listener == nil {
		return
	}
	if err != nil {
		listener.OnError(err)
		return
	}
	listener.OnPublication(payload)
}

// Unregister stops an entry's runnables, removes it, and — for a multicast
// subscription — asks the router to remove the receiver. A router failure
// surfaces a SubscriptionSetupFailed error to the listener, but local state
// is cleaned up regardless.
func (m *Manager) Unregister(subscriptionID string) {
	m.mu.Lock()
	e, ok := m.entries[subscriptionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.unregisterLocked(subscriptionID)

	if e.multicastID != "" {
		m.router.RemoveMulticastReceiver(e.multicastID, e.subscriberID, e.providerParticipantID, func() {}, func(err error) {
			scope.Warnf("router failed to remove multicast receiver for subscription %s: %v", subscriptionID, err)
			e.mu.Lock()
			listener := e.listener
			e.mu.Unlock()
			if listener != nil {
				listener.OnError(joynrerrors.Wrap(joynrerrors.SubscriptionSetupFailed, err, "failed to remove multicast receiver for subscription %s", subscriptionID))
			}
		})
	}
}

// unregisterLocked stops runnables and removes bookkeeping for an existing
// subscription id, if any. It is also used internally before re-registering
// a reused id.
func (m *Manager) unregisterLocked(subscriptionID string) {
	m.mu.Lock()
	e, ok := m.entries[subscriptionID]
	if ok {
		delete(m.entries, subscriptionID)
		if e.multicastID != "" {
			if set, ok := m.byMulticastID[e.multicastID]; ok {
				delete(set, subscriptionID)
				if len(set) == 0 {
					delete(m.byMulticastID, e.multicastID)
				}
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.stopped = true
	endHandle, missedHandle := e.endHandle, e.missedHandle
	e.mu.Unlock()
	m.sched.Unschedule(endHandle)
	m.sched.Unschedule(missedHandle)
}

func (m *Manager) removeEntry(subscriptionID string) {
	m.unregisterLocked(subscriptionID)
}

// Shutdown stops the delayed scheduler, cancelling all pending runnables,
// removes every remaining multicast receiver from the router, waits for
// in-flight dispatch to complete, and discards all subscription entries.
// The returned error combines every router removal failure with a possible
// in-flight-dispatch timeout; callers that only care about cancellation
// happening at all may ignore it.
func (m *Manager) Shutdown() error {
	if !m.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	m.sched.Shutdown()

	m.mu.Lock()
	var multicastEntries []*entry
	for _, e := range m.entries {
		if e.multicastID != "" {
			multicastEntries = append(multicastEntries, e)
		}
	}
	m.mu.Unlock()

	var removalErrs *multierror.Error
	var removalMu sync.Mutex
	var wg sync.WaitGroup
	for _, e := range multicastEntries {
		e := e
		wg.Add(1)
		m.router.RemoveMulticastReceiver(e.multicastID, e.subscriberID, e.providerParticipantID, func() {
			wg.Done()
		}, func(err error) {
			removalMu.Lock()
			removalErrs = multierror.Append(removalErrs, fmt.Errorf("subscription %s: %w", e.subscriptionID, err))
			removalMu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		m.dispatch.Wait()
		close(done)
	}()
	var timeoutErr error
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		scope.Warnf("shutdown timed out waiting for in-flight dispatch")
		timeoutErr = errors.New("subscription manager shutdown timed out waiting for in-flight dispatch")
	}

	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.byMulticastID = make(map[string]map[string]struct{})
	m.mu.Unlock()

	return multierr.Combine(removalErrs.ErrorOrNil(), timeoutErr)
}
