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
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"istio.io/pkg/log"

	"github.com/bmwcarit/joynr-sub007/pkg/concurrency"
)

var scope = log.RegisterScope("discovery", "discovery collaborator debugging", 0)

// LocalCollaborator is a reference, in-process Collaborator implementation
// backed by an LRU-cached local capabilities registry. It is the moral
// equivalent of the original's FakeCapabilitiesClient: a self-contained
// stand-in for a real cluster-controller/global-directory round trip,
// suitable for local-only deployments, tests, and embedding applications
// that don't need a networked backend.
//
// Unlike the original fake, which always fabricates a dummy entry for any
// query, this collaborator only returns entries that were explicitly
// registered via Register, so it is faithful enough to exercise the
// arbitrator's soft/hard failure classification (§4.1 step 3) when nothing
// matches.
type LocalCollaborator struct {
	mu            sync.Mutex
	byParticipant *lru.Cache // participantID -> EntryWithMetaInfo
	byDomainIface map[string][]EntryWithMetaInfo

	now func() int64 // overridable for tests
}

// NewLocalCollaborator creates a LocalCollaborator with an LRU cache sized
// for capacity entries.
func NewLocalCollaborator(capacity int) *LocalCollaborator {
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for capacity <= 0; fall back to a sane
		// default rather than letting a reference implementation panic.
		c, _ = lru.New(1024)
	}
	return &LocalCollaborator{
		byParticipant: c,
		byDomainIface: make(map[string][]EntryWithMetaInfo),
		now:           func() int64 { return time.Now().UnixMilli() },
	}
}

// withinCacheMaxAge reports whether e is fresh enough to serve for a lookup
// carrying qos.CacheMaxAgeMs. A non-positive CacheMaxAgeMs means the caller
// places no freshness bound on the cache.
func (c *LocalCollaborator) withinCacheMaxAge(e EntryWithMetaInfo, qos SystemQos) bool {
	if qos.CacheMaxAgeMs <= 0 {
		return true
	}
	return c.now()-e.LastSeenMs <= qos.CacheMaxAgeMs
}

func domainIfaceKey(domain, iface string) string {
	return domain + "\x00" + iface
}

// Register adds or replaces an entry in the local registry.
func (c *LocalCollaborator) Register(e EntryWithMetaInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byParticipant.Add(e.ParticipantID, e)
	key := domainIfaceKey(e.Domain, e.InterfaceName)
	list := c.byDomainIface[key]
	replaced := false
	for i, existing := range list {
		if existing.ParticipantID == e.ParticipantID {
			list[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, e)
	}
	c.byDomainIface[key] = list
}

// Remove evicts a previously registered entry.
func (c *LocalCollaborator) Remove(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byParticipant.Peek(participantID)
	if !ok {
		return
	}
	c.byParticipant.Remove(participantID)
	e := v.(EntryWithMetaInfo)
	key := domainIfaceKey(e.Domain, e.InterfaceName)
	list := c.byDomainIface[key]
	for i, existing := range list {
		if existing.ParticipantID == participantID {
			c.byDomainIface[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// LookupByParticipantID implements Collaborator.
func (c *LocalCollaborator) LookupByParticipantID(participantID string, qos SystemQos, gbids []string) *concurrency.Future[LookupResult] {
	f := concurrency.NewFuture[LookupResult]()
	c.mu.Lock()
	v, ok := c.byParticipant.Get(participantID)
	c.mu.Unlock()
	if !ok {
		scope.Debugf("no local entry for participant %s", participantID)
		f.OnSuccess(LookupResult{ModelledError: NoEntryForParticipant})
		return f
	}
	e := v.(EntryWithMetaInfo)
	if !c.withinCacheMaxAge(e, qos) {
		scope.Debugf("local entry for participant %s is older than cacheMaxAgeMs=%d", participantID, qos.CacheMaxAgeMs)
		f.OnSuccess(LookupResult{ModelledError: NoEntryForParticipant})
		return f
	}
	f.OnSuccess(LookupResult{Entries: []EntryWithMetaInfo{e}})
	return f
}

// LookupByDomainInterface implements Collaborator.
func (c *LocalCollaborator) LookupByDomainInterface(domains []string, interfaceName string, qos SystemQos, gbids []string) *concurrency.Future[LookupResult] {
	f := concurrency.NewFuture[LookupResult]()
	var all []EntryWithMetaInfo
	c.mu.Lock()
	for _, domain := range domains {
		all = append(all, c.byDomainIface[domainIfaceKey(domain, interfaceName)]...)
	}
	c.mu.Unlock()

	found := make([]EntryWithMetaInfo, 0, len(all))
	for _, e := range all {
		if c.withinCacheMaxAge(e, qos) {
			found = append(found, e)
		}
	}
	if len(found) == 0 {
		scope.Debugf("no local entries for domains=%v interface=%s", domains, interfaceName)
		f.OnSuccess(LookupResult{ModelledError: NoEntryForSelectedBackends})
		return f
	}
	f.OnSuccess(LookupResult{Entries: found})
	return f
}
