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

// Package arbitration implements the provider discovery retry/timeout loop
// (C4): given a domain set, interface name, version and DiscoveryQos, it
// repeatedly queries a discovery.Collaborator until a suitable provider is
// selected or time runs out.
package arbitration

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/atomic"

	"istio.io/pkg/log"

	"github.com/bmwcarit/joynr-sub007/internal/monitoring"
	"github.com/bmwcarit/joynr-sub007/pkg/concurrency"
	"github.com/bmwcarit/joynr-sub007/pkg/discovery"
	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
)

var scope = log.RegisterScope("arbitration", "provider arbitration debugging", 0)

// Request bundles the parameters a single Arbitrator run resolves.
type Request struct {
	Domains          []string
	InterfaceName    string
	RequestedVersion discovery.Version
	Qos              discovery.Qos
	Gbids            []string

	// ProxyParticipantID tags every log line this Arbitrator emits, purely
	// for correlation when a process runs many proxies concurrently; it has
	// no effect on arbitration outcome.
	ProxyParticipantID string

	// FilterByVersionAndStrategy enables the version-compatibility filter
	// (§4.1 step 4b) and, for FixedParticipant, the interface-name check
	// at the query step.
	FilterByVersionAndStrategy bool
}

// Arbitrator is the C4 component. One instance resolves one Request; it is
// not reusable across requests.
type Arbitrator struct {
	req          Request
	collaborator discovery.Collaborator

	onSuccess func(discovery.Result)
	onError   func(*joynrerrors.Error)

	mu      sync.Mutex
	started bool
	stopped atomic.Bool
	done    chan struct{}
	fired   atomic.Bool

	pendingMu sync.Mutex
	pending   *concurrency.Future[discovery.LookupResult]
}

// New creates an Arbitrator for req against collaborator.
func New(req Request, collaborator discovery.Collaborator) *Arbitrator {
	return &Arbitrator{
		req:          req,
		collaborator: collaborator,
		done:         make(chan struct{}),
	}
}

// Start begins the retry loop on a dedicated goroutine. It is idempotent: a
// second call while already running is a no-op that logs and returns.
// Exactly one of onSuccess/onError will be called, exactly once, before
// Stop returns (if Stop is ever called) or before the goroutine exits.
func (a *Arbitrator) Start(onSuccess func(discovery.Result), onError func(*joynrerrors.Error), filterByVersionAndStrategy bool) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		scope.Warnf("[proxy=%s] arbitration for interface %s already started, ignoring duplicate start", a.req.ProxyParticipantID, a.req.InterfaceName)
		return
	}
	a.started = true
	a.onSuccess = onSuccess
	a.onError = onError
	a.req.FilterByVersionAndStrategy = filterByVersionAndStrategy
	a.mu.Unlock()

	// KEYWORD arbitration without a keyword parameter fails synchronously,
	// before ever spawning the retry loop (§4.1 strategy table).
	if a.req.Qos.ArbitrationStrategy == discovery.Keyword {
		if _, ok := a.req.Qos.Keyword(); !ok {
			close(a.done)
			a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.InvalidArgument, "KEYWORD arbitration strategy requires a \"keyword\" custom parameter"))
			return
		}
	}

	go a.run()
}

// Stop cancels any in-flight discovery call and terminates the retry loop.
// It blocks until exactly one of onSuccess/onError has been invoked (or
// immediately if Start was never called). Stop is idempotent.
func (a *Arbitrator) Stop() {
	if !a.stopped.CompareAndSwap(false, true) {
		<-a.done
		return
	}
	shutdownErr := joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName)
	a.pendingMu.Lock()
	if a.pending != nil {
		// The pending lookup future is single-assignment: completing it
		// here races harmlessly with the collaborator completing it on its
		// own, and whichever call lands first wins (§4.3).
		a.pending.OnError(shutdownErr)
	}
	a.pendingMu.Unlock()

	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		close(a.done)
		return
	}
	<-a.done
}

func (a *Arbitrator) run() {
	defer close(a.done)
	scope.Infof("[proxy=%s] arbitration started for interface=%s domains=%v strategy=%v", a.req.ProxyParticipantID, a.req.InterfaceName, a.req.Domains, a.req.Qos.ArbitrationStrategy)

	sel := selectorFor(a.req.Qos.ArbitrationStrategy)
	start := time.Now()
	var failedForever bool
	var lastErr *joynrerrors.Error
	discoveredIncompatible := map[discovery.Version]struct{}{}

	timeout := time.Duration(a.req.Qos.DiscoveryTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.Timeout, "Arbitration could not be finished in time."))
		return
	}

	backOff := backoff.NewConstantBackOff(time.Duration(a.req.Qos.RetryIntervalMs) * time.Millisecond)

	for {
		if a.stopped.Load() {
			a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName))
			return
		}

		monitoring.ArbitrationAttempts.Inc()
		entries, queryErr, hard := a.query()
		if queryErr != nil {
			lastErr = queryErr
			if hard {
				failedForever = true
			}
		} else if len(entries) > 0 {
			filtered := a.filter(entries, discoveredIncompatible)
			if len(filtered) > 0 {
				selected, ok, selErr := sel(a.req.Qos, filtered)
				if ok {
					a.finish(discovery.Result{Entries: []discovery.EntryWithMetaInfo{selected}}, nil)
					return
				}
				if selErr != nil {
					lastErr = selErr
				}
			}
		}

		if a.stopped.Load() {
			a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName))
			return
		}

		elapsed := time.Since(start)
		if elapsed >= timeout || failedForever {
			break
		}
		retryInterval := time.Duration(a.req.Qos.RetryIntervalMs) * time.Millisecond
		if timeout-elapsed <= retryInterval {
			break
		}

		sleep := backOff.NextBackOff()
		if sleep == backoff.Stop {
			break
		}
		if !a.sleepInterruptible(sleep) {
			a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName))
			return
		}
	}

	a.giveUp(lastErr, discoveredIncompatible)
}

// sleepInterruptible waits for d, returning false if Stop fired first.
func (a *Arbitrator) sleepInterruptible(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case <-ticker.C:
			if a.stopped.Load() {
				return false
			}
		}
	}
}

func (a *Arbitrator) giveUp(lastErr *joynrerrors.Error, discoveredIncompatible map[discovery.Version]struct{}) {
	if a.stopped.Load() {
		a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName))
		return
	}
	if len(discoveredIncompatible) > 0 {
		versions := make([]joynrerrors.Version, 0, len(discoveredIncompatible))
		for v := range discoveredIncompatible {
			versions = append(versions, joynrerrors.Version{Major: v.Major, Minor: v.Minor})
		}
		a.finish(discovery.Result{}, joynrerrors.NewIncompatibleVersions(versions))
		return
	}
	if lastErr != nil {
		a.finish(discovery.Result{}, lastErr)
		return
	}
	a.finish(discovery.Result{}, joynrerrors.New(joynrerrors.Timeout, "Arbitration could not be finished in time."))
}

// query issues exactly one discovery call and classifies the outcome per
// §4.1 steps 2-3. hard reports whether the error is a hard (give-up-now)
// failure.
func (a *Arbitrator) query() ([]discovery.EntryWithMetaInfo, *joynrerrors.Error, bool) {
	sysQos := discovery.SystemQos{
		CacheMaxAgeMs:               a.req.Qos.CacheMaxAgeMs,
		DiscoveryTimeoutMs:          a.req.Qos.DiscoveryTimeoutMs,
		DiscoveryScope:              a.req.Qos.DiscoveryScope,
		ProviderMustSupportOnChange: a.req.Qos.ProviderMustSupportOnChange,
	}

	if a.req.Qos.DiscoveryScope == discovery.ScopeLocalOnly || a.req.Qos.ArbitrationStrategy == discovery.LocalOnly {
		sysQos.DiscoveryScope = discovery.ScopeLocalOnly
	}

	if a.req.Qos.ArbitrationStrategy == discovery.FixedParticipant {
		participantID, _ := a.req.Qos.FixedParticipantID()
		f := a.collaborator.LookupByParticipantID(participantID, sysQos, a.req.Gbids)
		res, fErr := a.awaitPending(f)
		if fErr != nil {
			return nil, joynrerrors.Wrap(joynrerrors.InternalError, fErr, "fixed participant lookup failed"), false
		}
		return a.classify(res, true)
	}

	f := a.collaborator.LookupByDomainInterface(a.req.Domains, a.req.InterfaceName, sysQos, a.req.Gbids)
	res, fErr := a.awaitPending(f)
	if fErr != nil {
		return nil, joynrerrors.Wrap(joynrerrors.InternalError, fErr, "discovery lookup failed"), false
	}
	return a.classify(res, false)
}

// awaitPending registers f as the cancellable in-flight lookup, then blocks
// for its result for at most DiscoveryTimeoutMs. If Stop() raced ahead of
// registration, it completes f itself so the wait below can never hang past
// shutdown.
func (a *Arbitrator) awaitPending(f *concurrency.Future[discovery.LookupResult]) (discovery.LookupResult, *joynrerrors.Error) {
	a.pendingMu.Lock()
	a.pending = f
	a.pendingMu.Unlock()

	if a.stopped.Load() {
		f.OnError(joynrerrors.New(joynrerrors.ShutdownInProgress, "Shutting Down Arbitration for interface %s", a.req.InterfaceName))
	}

	res, fErr := f.Get(time.Duration(a.req.Qos.DiscoveryTimeoutMs) * time.Millisecond)

	a.pendingMu.Lock()
	a.pending = nil
	a.pendingMu.Unlock()
	return res, fErr
}

func (a *Arbitrator) classify(res discovery.LookupResult, fixedParticipant bool) ([]discovery.EntryWithMetaInfo, *joynrerrors.Error, bool) {
	if res.Err != nil && res.ModelledError == discovery.NoOpaqueError {
		// Opaque runtime error: soft failure, loop continues (§4.1 step 3).
		return nil, joynrerrors.Wrap(joynrerrors.InternalError, res.Err, "discovery runtime error"), false
	}
	switch res.ModelledError {
	case discovery.NoEntryForParticipant, discovery.NoEntryForSelectedBackends:
		return nil, joynrerrors.New(joynrerrors.DiscoveryFailed, "%v", res.ModelledError), false
	case discovery.UnknownGbid, discovery.InvalidGbid, discovery.InternalErrorLookup:
		return nil, joynrerrors.New(joynrerrors.InternalError, "%v", res.ModelledError), true
	}

	if fixedParticipant && a.req.FilterByVersionAndStrategy && len(res.Entries) > 0 {
		if res.Entries[0].InterfaceName != a.req.InterfaceName {
			return nil, joynrerrors.New(joynrerrors.InternalError, "incompatible interface: got %s, requested %s", res.Entries[0].InterfaceName, a.req.InterfaceName), true
		}
	}
	return res.Entries, nil, false
}

func (a *Arbitrator) filter(entries []discovery.EntryWithMetaInfo, discoveredIncompatible map[discovery.Version]struct{}) []discovery.EntryWithMetaInfo {
	if a.req.Qos.ArbitrationStrategy == discovery.FixedParticipant {
		return entries
	}
	filtered := make([]discovery.EntryWithMetaInfo, 0, len(entries))
	for _, e := range entries {
		if a.req.Qos.ProviderMustSupportOnChange && !e.ProviderQos.SupportsOnChangeSubscriptions {
			continue
		}
		if a.req.FilterByVersionAndStrategy && a.req.Qos.ArbitrationStrategy != discovery.FixedParticipant {
			if !e.Version.IsCompatibleWith(a.req.RequestedVersion) {
				discoveredIncompatible[e.Version] = struct{}{}
				continue
			}
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func (a *Arbitrator) finish(result discovery.Result, err *joynrerrors.Error) {
	if !a.fired.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		monitoring.ArbitrationFailures.WithLabelValues(err.Kind.String()).Inc()
		scope.Warnf("[proxy=%s] arbitration for interface %s failed: %v", a.req.ProxyParticipantID, a.req.InterfaceName, err)
		if a.onError != nil {
			a.onError(err)
		}
		return
	}
	monitoring.ArbitrationSuccesses.Inc()
	scope.Infof("[proxy=%s] arbitration for interface %s selected participant %s", a.req.ProxyParticipantID, a.req.InterfaceName, result.Primary().ParticipantID)
	if a.onSuccess != nil {
		a.onSuccess(result)
	}
}
