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

// Package discovery holds the data model exchanged between the arbitrator
// and the discovery collaborator: versions, discovery entries, and the two
// QoS objects that drive a lookup.
package discovery

// Version identifies the major/minor version of an interface. Equality is
// by both fields; compatibility is defined by the arbitrator's version
// filter (major must match, minor must be at least the requested minor).
type Version struct {
	Major uint32
	Minor uint32
}

// IsCompatibleWith reports whether a provider advertising this version
// satisfies a proxy that requested the given version, per §4.1 step 4b:
// major must match exactly, minor must be at least the requested minor.
func (v Version) IsCompatibleWith(requested Version) bool {
	return v.Major == requested.Major && v.Minor >= requested.Minor
}

// Scope is the discovery scope of a ProviderQos entry.
type Scope int

const (
	// ScopeLocal means the provider is only visible to local consumers.
	ScopeLocal Scope = iota
	// ScopeGlobal means the provider is registered with the global directory.
	ScopeGlobal
)

// CustomParameter is an ordered (name, value) pair; ProviderQos keeps these
// ordered (not as a plain map) because KEYWORD-strategy matching and logging
// both care about a stable order. Qos (the DiscoveryQos) holds its custom
// parameters in a plain map.
type CustomParameter struct {
	Name  string
	Value string
}

// ProviderQos describes a provider's advertised quality of service.
type ProviderQos struct {
	CustomParameters              []CustomParameter
	Priority                      int64
	Scope                         Scope
	SupportsOnChangeSubscriptions bool
}

// CustomParameter looks up a parameter by name.
func (q ProviderQos) CustomParameter(name string) (string, bool) {
	for _, p := range q.CustomParameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Entry is a DiscoveryEntry: one advertised provider.
type Entry struct {
	Version       Version
	Domain        string
	InterfaceName string
	ParticipantID string
	ProviderQos   ProviderQos
	LastSeenMs    int64
	ExpiryDateMs  int64
	PublicKeyID   string
}

// EntryWithMetaInfo is a DiscoveryEntryWithMetaInfo: an Entry plus whether it
// was resolved from the local capabilities directory.
type EntryWithMetaInfo struct {
	Entry
	IsLocal bool
}

// ArbitrationStrategy selects how the arbitrator picks among candidate
// entries.
type ArbitrationStrategy int

const (
	// NotSet defaults to HighestPriority.
	NotSet ArbitrationStrategy = iota
	// FixedParticipant bypasses filtering: the single entry returned by a
	// lookup-by-participant-id call is the selection.
	FixedParticipant
	// HighestPriority selects the entry with the highest non-negative
	// ProviderQos.Priority.
	HighestPriority
	// Keyword selects any entry whose ProviderQos carries the requested
	// "keyword" custom parameter.
	Keyword
	// LocalOnly selects the first entry with IsLocal == true and never
	// queries the global directory.
	LocalOnly
)

// DiscoveryScope controls which directories a lookup consults.
type DiscoveryScope int

const (
	// ScopeLocalOnly consults only the local capabilities directory.
	ScopeLocalOnly DiscoveryScope = iota
	// ScopeLocalThenGlobal consults local first, falling back to global.
	ScopeLocalThenGlobal
	// ScopeLocalAndGlobal consults both and merges results.
	ScopeLocalAndGlobal
	// ScopeGlobalOnly consults only the global directory.
	ScopeGlobalOnly
)

// NoExpiry is the sentinel for "no expiry" on an expiry date field.
const NoExpiry int64 = -1

// Qos is the DiscoveryQos driving an arbitration run.
type Qos struct {
	CacheMaxAgeMs               int64
	DiscoveryTimeoutMs          int64
	RetryIntervalMs             int64
	ArbitrationStrategy         ArbitrationStrategy
	DiscoveryScope              DiscoveryScope
	ProviderMustSupportOnChange bool
	CustomParameters            map[string]string
}

// FixedParticipantID returns the "fixedParticipantId" custom parameter used
// by the FixedParticipant strategy, if set.
func (q Qos) FixedParticipantID() (string, bool) {
	v, ok := q.CustomParameters["fixedParticipantId"]
	return v, ok
}

// Keyword returns the "keyword" custom parameter used by the Keyword
// strategy, if set.
func (q Qos) Keyword() (string, bool) {
	v, ok := q.CustomParameters["keyword"]
	return v, ok
}

// Result is an ArbitrationResult: a non-empty ordered sequence of selected
// entries, first element is the primary choice. The arbitrator never
// constructs an empty Result; an unsuccessful run is always an error.
type Result struct {
	Entries []EntryWithMetaInfo
}

// Primary returns the first (primary) selected entry.
func (r Result) Primary() EntryWithMetaInfo {
	return r.Entries[0]
}
