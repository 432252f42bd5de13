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

// Package dispatch implements the Dispatcher (C6): the inbound message
// switchboard that correlates replies to pending Futures, invokes request
// interpreters, and forwards publications to the Subscription Manager.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"istio.io/pkg/log"

	"github.com/bmwcarit/joynr-sub007/internal/monitoring"
	"github.com/bmwcarit/joynr-sub007/internal/tracing"
	"github.com/bmwcarit/joynr-sub007/pkg/concurrency"
	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
	"github.com/bmwcarit/joynr-sub007/pkg/messaging"
	"github.com/bmwcarit/joynr-sub007/pkg/scheduler"
)

var scope = log.RegisterScope("dispatch", "message dispatcher debugging", 0)

// cleanupIntervalMs is how often the Dispatcher sweeps replyCallers for
// expired entries.
const cleanupIntervalMs = 1000

// Interpreter handles a deserialized REQUEST/ONE_WAY_REQUEST payload for one
// interface+majorVersion pair. Implementations are generated per the
// original's requestInterpreters table; this core only dispatches to them.
type Interpreter interface {
	Invoke(callContext *tracing.CallContext, payload []byte) (replyPayload []byte, err *joynrerrors.Error)
}

// SubscriptionTarget is the subset of the Subscription Manager the
// Dispatcher forwards inbound publications and subscription replies to. It
// is defined here, rather than imported as a concrete type, so the
// Dispatcher depends only on the shape it needs (*subscription.Manager
// satisfies it structurally).
type SubscriptionTarget interface {
	DispatchUnicastPublication(subscriptionID string, payload []byte)
	DispatchUnicastError(subscriptionID string, err *joynrerrors.Error)
	DispatchMulticastPublication(multicastID string, payload []byte)
}

type replyCallerEntry struct {
	future   *concurrency.Future[[]byte]
	expiryMs int64
}

// Dispatcher is the C6 component.
type Dispatcher struct {
	mu           sync.Mutex
	replyCallers map[string]replyCallerEntry
	interpreters map[string]Interpreter

	subscriptions SubscriptionTarget
	router        messaging.Router
	tracer        opentracing.Tracer
	sched         *scheduler.Scheduler

	now func() int64
}

// New creates a Dispatcher that routes replies through router, forwards
// publications to subscriptions, and tags provider-callback spans with
// tracer. Pass tracing.NewDefaultTracer's result when the embedding
// application has no tracer of its own.
func New(router messaging.Router, subscriptions SubscriptionTarget, tracer opentracing.Tracer) *Dispatcher {
	d := &Dispatcher{
		replyCallers:  make(map[string]replyCallerEntry),
		interpreters:  make(map[string]Interpreter),
		subscriptions: subscriptions,
		router:        router,
		tracer:        tracer,
		sched:         scheduler.New(),
		now:           func() int64 { return time.Now().UnixMilli() },
	}
	d.armCleanup()
	return d
}

// interpreterKey mirrors requestInterpreters' map<interfaceName+majorVersion, Interpreter>.
func interpreterKey(interfaceName string, majorVersion uint32) string {
	return fmt.Sprintf("%s/%d", interfaceName, majorVersion)
}

// RegisterInterpreter installs the interpreter for one interface+majorVersion.
func (d *Dispatcher) RegisterInterpreter(interfaceName string, majorVersion uint32, interp Interpreter) {
	d.mu.Lock()
	d.interpreters[interpreterKey(interfaceName, majorVersion)] = interp
	d.mu.Unlock()
}

// RegisterReplyCaller records the Future a pending REQUEST is waiting on,
// keyed by requestReplyId, with expiryMs as the absolute wall-clock deadline
// the periodic cleanup enforces.
func (d *Dispatcher) RegisterReplyCaller(requestReplyID string, future *concurrency.Future[[]byte], expiryMs int64) {
	d.mu.Lock()
	d.replyCallers[requestReplyID] = replyCallerEntry{future: future, expiryMs: expiryMs}
	d.mu.Unlock()
}

// Receive is the Dispatcher's single inbound entry point; it switches on
// msg.MessageType per §4.5.
func (d *Dispatcher) Receive(msg messaging.Message) {
	monitoring.DispatchedMessages.WithLabelValues(msg.MessageType.String()).Inc()
	switch msg.MessageType {
	case messaging.Request:
		d.handleRequest(msg, true)
	case messaging.OneWayRequest:
		d.handleRequest(msg, false)
	case messaging.Reply:
		d.handleReply(msg)
	case messaging.SubscriptionReply:
		d.subscriptions.DispatchUnicastPublication(msg.SubscriptionID, msg.Payload)
	case messaging.Publication:
		d.handlePublication(msg)
	case messaging.MulticastPublication:
		d.subscriptions.DispatchMulticastPublication(msg.MulticastID, msg.Payload)
	default:
		scope.Warnf("dispatcher received unhandled message type %s", msg.MessageType)
	}
}

func (d *Dispatcher) handlePublication(msg messaging.Message) {
	d.subscriptions.DispatchUnicastPublication(msg.SubscriptionID, msg.Payload)
}

func (d *Dispatcher) handleRequest(msg messaging.Message, expectsReply bool) {
	d.mu.Lock()
	interp, ok := d.interpreters[interpreterKey(msg.InterfaceName, msg.InterfaceMajorVersion)]
	d.mu.Unlock()
	if !ok {
		scope.Warnf("no request interpreter registered for %s/%d", msg.InterfaceName, msg.InterfaceMajorVersion)
		if expectsReply {
			d.sendErrorReply(msg, joynrerrors.New(joynrerrors.InternalError, "no request interpreter for %s/%d", msg.InterfaceName, msg.InterfaceMajorVersion))
		}
		return
	}

	callCtx := d.startCallContext(msg)
	replyPayload, err := interp.Invoke(callCtx, msg.Payload)
	callCtx.Finish()

	if !expectsReply {
		return
	}
	if err != nil {
		d.sendErrorReply(msg, err)
		return
	}
	reply := messaging.Message{
		MessageType:    messaging.Reply,
		SenderID:       msg.RecipientID,
		RecipientID:    msg.SenderID,
		RequestReplyID: msg.RequestReplyID,
		ExpiryDateMs:   msg.ExpiryDateMs,
		Payload:        replyPayload,
	}
	if err := d.router.Route(reply); err != nil {
		scope.Errorf("failed to route reply for request %s: %v", msg.RequestReplyID, err)
	}
}

func (d *Dispatcher) sendErrorReply(msg messaging.Message, err *joynrerrors.Error) {
	reply := messaging.Message{
		MessageType:    messaging.Reply,
		SenderID:       msg.RecipientID,
		RecipientID:    msg.SenderID,
		RequestReplyID: msg.RequestReplyID,
		ExpiryDateMs:   msg.ExpiryDateMs,
		Payload:        []byte(err.Error()),
	}
	if routeErr := d.router.Route(reply); routeErr != nil {
		scope.Errorf("failed to route error reply for request %s: %v", msg.RequestReplyID, routeErr)
	}
}

func (d *Dispatcher) handleReply(msg messaging.Message) {
	d.mu.Lock()
	entry, ok := d.replyCallers[msg.RequestReplyID]
	if ok {
		delete(d.replyCallers, msg.RequestReplyID)
	}
	d.mu.Unlock()
	if !ok {
		scope.Debugf("reply for unknown or already-timed-out requestReplyId %s dropped", msg.RequestReplyID)
		return
	}
	entry.future.OnSuccess(msg.Payload)
}

// startCallContext builds the per-dispatch CallContext the Dispatcher binds
// before invoking a provider callback, tagged with the message's creator
// principal id (§4.5).
func (d *Dispatcher) startCallContext(msg messaging.Message) *tracing.CallContext {
	if d.tracer == nil {
		return nil
	}
	return tracing.Start(d.tracer, "dispatch."+msg.MessageType.String(), msg.CreatorUserID)
}

// armCleanup schedules the periodic reply-caller sweep; it re-arms itself
// for as long as the Dispatcher's scheduler is running.
func (d *Dispatcher) armCleanup() {
	d.sched.Schedule(d.runCleanup, cleanupIntervalMs*time.Millisecond)
}

func (d *Dispatcher) runCleanup() {
	now := d.now()
	var expired []replyCallerEntry
	d.mu.Lock()
	for id, entry := range d.replyCallers {
		if entry.expiryMs < now {
			expired = append(expired, entry)
			delete(d.replyCallers, id)
		}
	}
	d.mu.Unlock()

	for _, entry := range expired {
		entry.future.OnError(joynrerrors.New(joynrerrors.Timeout, "reply did not arrive before expiry"))
	}

	d.armCleanup()
}

// Shutdown stops the Dispatcher's cleanup scheduler. Pending reply callers
// are left untouched; callers are expected to shut down the Arbitrator and
// Subscription Manager independently, per the component's cancellation model.
func (d *Dispatcher) Shutdown() {
	d.sched.Shutdown()
}
