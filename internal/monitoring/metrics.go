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

// Package monitoring holds the internal Prometheus counters the runtime
// increments on its own hot paths, in the same spirit as pilot's ads.go
// (totalXDSInternalErrors and friends): a handful of package-level counters
// registered once, incremented inline, never read back by this module.
package monitoring

import "github.com/prometheus/client_golang/prometheus"

var (
	// ArbitrationAttempts counts every discovery query the arbitrator
	// issues, including retries.
	ArbitrationAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "joynr_arbitration_attempts_total",
		Help: "Total number of discovery queries issued by the arbitrator.",
	})

	// ArbitrationSuccesses counts arbitration runs that ended in onSuccess.
	ArbitrationSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "joynr_arbitration_successes_total",
		Help: "Total number of arbitration runs that selected a provider.",
	})

	// ArbitrationFailures counts arbitration runs that ended in onError,
	// labeled by error kind.
	ArbitrationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "joynr_arbitration_failures_total",
		Help: "Total number of arbitration runs that gave up, by error kind.",
	}, []string{"kind"})

	// SubscriptionMissedPublications counts PublicationMissed errors
	// delivered to listeners.
	SubscriptionMissedPublications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "joynr_subscription_missed_publications_total",
		Help: "Total number of missed-publication errors delivered to listeners.",
	})

	// DispatchedMessages counts messages handled by the dispatcher, labeled
	// by message type.
	DispatchedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "joynr_dispatched_messages_total",
		Help: "Total number of inbound messages handled by the dispatcher, by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		ArbitrationAttempts,
		ArbitrationSuccesses,
		ArbitrationFailures,
		SubscriptionMissedPublications,
		DispatchedMessages,
	)
}
