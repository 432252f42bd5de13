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

package discovery

import (
	"github.com/bmwcarit/joynr-sub007/pkg/concurrency"
)

// LookupError enumerates the modelled failure reasons a Collaborator lookup
// can signal, independent of opaque runtime/transport errors.
type LookupError int

const (
	// NoOpaqueError means the lookup did not fail with a modelled error
	// (either it succeeded or failed with an opaque runtime error).
	NoOpaqueError LookupError = iota
	// NoEntryForParticipant is a soft failure: the arbitrator's retry loop
	// continues.
	NoEntryForParticipant
	// NoEntryForSelectedBackends is a soft failure: the arbitrator's retry
	// loop continues.
	NoEntryForSelectedBackends
	// UnknownGbid is a hard failure: the arbitrator gives up immediately.
	UnknownGbid
	// InvalidGbid is a hard failure: the arbitrator gives up immediately.
	InvalidGbid
	// InternalErrorLookup is a hard failure: the arbitrator gives up
	// immediately.
	InternalErrorLookup
)

// LookupResult is the outcome of a Collaborator lookup: either a non-empty
// set of entries, or a modelled LookupError, or an opaque error (e.g. a
// transport failure) carried in Err with ModelledError == NoOpaqueError.
type LookupResult struct {
	Entries       []EntryWithMetaInfo
	ModelledError LookupError
	Err           error
}

// SystemQos is the subset of Qos forwarded on the wire to the discovery
// collaborator: cache age, timeout, scope and the on-change requirement.
type SystemQos struct {
	CacheMaxAgeMs               int64
	DiscoveryTimeoutMs          int64
	DiscoveryScope              DiscoveryScope
	ProviderMustSupportOnChange bool
}

// Collaborator is the external Discovery Collaborator contract (§6): the
// arbitrator's only dependency for resolving domain/interface or
// participant id lookups. Implementations may consult a local capabilities
// directory, a remote global directory, or both.
type Collaborator interface {
	// LookupByParticipantID resolves a single participant id (used by the
	// FixedParticipant strategy).
	LookupByParticipantID(participantID string, qos SystemQos, gbids []string) *concurrency.Future[LookupResult]

	// LookupByDomainInterface resolves a (domains, interfaceName) pair to
	// the set of matching entries.
	LookupByDomainInterface(domains []string, interfaceName string, qos SystemQos, gbids []string) *concurrency.Future[LookupResult]
}
