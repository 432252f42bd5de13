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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCollaboratorLookupByDomainInterface(t *testing.T) {
	c := NewLocalCollaborator(16)
	c.Register(EntryWithMetaInfo{
		Entry: Entry{
			Domain:        "vehicle",
			InterfaceName: "com.example.Radio",
			ParticipantID: "p1",
			Version:       Version{Major: 1, Minor: 0},
		},
		IsLocal: true,
	})

	f := c.LookupByDomainInterface([]string{"vehicle"}, "com.example.Radio", SystemQos{}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "p1", res.Entries[0].ParticipantID)
}

func TestLocalCollaboratorLookupByDomainInterfaceNoEntry(t *testing.T) {
	c := NewLocalCollaborator(16)
	f := c.LookupByDomainInterface([]string{"vehicle"}, "com.example.Radio", SystemQos{}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, NoEntryForSelectedBackends, res.ModelledError)
}

func TestLocalCollaboratorLookupByParticipantID(t *testing.T) {
	c := NewLocalCollaborator(16)
	c.Register(EntryWithMetaInfo{Entry: Entry{ParticipantID: "p1", InterfaceName: "iface"}})

	f := c.LookupByParticipantID("p1", SystemQos{}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "p1", res.Entries[0].ParticipantID)
}

func TestLocalCollaboratorLookupByParticipantIDMissing(t *testing.T) {
	c := NewLocalCollaborator(16)
	f := c.LookupByParticipantID("missing", SystemQos{}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.Equal(t, NoEntryForParticipant, res.ModelledError)
}

func TestLocalCollaboratorEnforcesCacheMaxAge(t *testing.T) {
	c := NewLocalCollaborator(16)
	c.now = func() int64 { return 10_000 }
	c.Register(EntryWithMetaInfo{Entry: Entry{
		ParticipantID: "stale", Domain: "vehicle", InterfaceName: "com.example.Radio", LastSeenMs: 1_000,
	}})

	f := c.LookupByParticipantID("stale", SystemQos{CacheMaxAgeMs: 5_000}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	assert.Equal(t, NoEntryForParticipant, res.ModelledError)

	f2 := c.LookupByDomainInterface([]string{"vehicle"}, "com.example.Radio", SystemQos{CacheMaxAgeMs: 5_000}, nil)
	res2, err := f2.Get(time.Second)
	require.Nil(t, err)
	assert.Empty(t, res2.Entries)
	assert.Equal(t, NoEntryForSelectedBackends, res2.ModelledError)

	// A CacheMaxAgeMs generous enough to cover the entry's age still serves it.
	f3 := c.LookupByParticipantID("stale", SystemQos{CacheMaxAgeMs: 20_000}, nil)
	res3, err := f3.Get(time.Second)
	require.Nil(t, err)
	require.Len(t, res3.Entries, 1)
}

func TestLocalCollaboratorRemove(t *testing.T) {
	c := NewLocalCollaborator(16)
	e := EntryWithMetaInfo{Entry: Entry{ParticipantID: "p1", Domain: "d", InterfaceName: "i"}}
	c.Register(e)
	c.Remove("p1")

	f := c.LookupByParticipantID("p1", SystemQos{}, nil)
	res, _ := f.Get(time.Second)
	assert.Equal(t, NoEntryForParticipant, res.ModelledError)

	f2 := c.LookupByDomainInterface([]string{"d"}, "i", SystemQos{}, nil)
	res2, _ := f2.Get(time.Second)
	assert.Empty(t, res2.Entries)
}

func TestLocalCollaboratorRegisterReplacesExistingEntry(t *testing.T) {
	c := NewLocalCollaborator(16)
	original := EntryWithMetaInfo{
		Entry: Entry{ParticipantID: "p1", Domain: "vehicle", InterfaceName: "com.example.Radio", ProviderQos: ProviderQos{Priority: 1}},
	}
	updated := original
	updated.ProviderQos.Priority = 9
	c.Register(original)
	c.Register(updated)

	f := c.LookupByDomainInterface([]string{"vehicle"}, "com.example.Radio", SystemQos{}, nil)
	res, err := f.Get(time.Second)
	require.Nil(t, err)
	require.Len(t, res.Entries, 1)

	if diff := cmp.Diff(updated, res.Entries[0]); diff != "" {
		t.Errorf("re-registering a participant should replace, not duplicate, its entry (-want +got):\n%s", diff)
	}
}

func TestVersionCompatibility(t *testing.T) {
	cases := []struct {
		provider Version
		want     Version
		ok       bool
	}{
		{Version{1, 0}, Version{1, 0}, true},
		{Version{1, 3}, Version{1, 0}, true},
		{Version{1, 0}, Version{1, 3}, false},
		{Version{2, 0}, Version{1, 0}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.provider.IsCompatibleWith(tc.want))
	}
}
