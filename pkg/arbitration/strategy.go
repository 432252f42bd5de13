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

package arbitration

import (
	"github.com/bmwcarit/joynr-sub007/pkg/discovery"
	"github.com/bmwcarit/joynr-sub007/pkg/joynrerrors"
)

// selector picks at most one entry out of the already version/on-change
// filtered candidates, per the table in spec §4.1. It returns the selected
// entry and ok=true, or ok=false together with the error to give up with if
// the caller has no more retries left.
type selector func(qos discovery.Qos, candidates []discovery.EntryWithMetaInfo) (discovery.EntryWithMetaInfo, bool, *joynrerrors.Error)

func selectorFor(strategy discovery.ArbitrationStrategy) selector {
	switch strategy {
	case discovery.Keyword:
		return selectByKeyword
	case discovery.LocalOnly:
		return selectLocalOnly
	case discovery.FixedParticipant:
		return func(_ discovery.Qos, candidates []discovery.EntryWithMetaInfo) (discovery.EntryWithMetaInfo, bool, *joynrerrors.Error) {
			return candidates[0], true, nil
		}
	case discovery.HighestPriority, discovery.NotSet:
		return selectHighestPriority
	default:
		return selectHighestPriority
	}
}

func selectHighestPriority(_ discovery.Qos, candidates []discovery.EntryWithMetaInfo) (discovery.EntryWithMetaInfo, bool, *joynrerrors.Error) {
	var best discovery.EntryWithMetaInfo
	found := false
	for _, c := range candidates {
		if c.ProviderQos.Priority < 0 {
			continue
		}
		if !found || c.ProviderQos.Priority > best.ProviderQos.Priority {
			best = c
			found = true
		}
	}
	if !found {
		return discovery.EntryWithMetaInfo{}, false, joynrerrors.New(joynrerrors.DiscoveryFailed, "no compatible provider found")
	}
	return best, true, nil
}

func selectByKeyword(qos discovery.Qos, candidates []discovery.EntryWithMetaInfo) (discovery.EntryWithMetaInfo, bool, *joynrerrors.Error) {
	keyword, ok := qos.Keyword()
	if !ok {
		return discovery.EntryWithMetaInfo{}, false, joynrerrors.New(joynrerrors.InvalidArgument, "KEYWORD arbitration strategy requires a \"keyword\" custom parameter")
	}
	for _, c := range candidates {
		if v, has := c.ProviderQos.CustomParameter("keyword"); has && v == keyword {
			return c, true, nil
		}
	}
	return discovery.EntryWithMetaInfo{}, false, joynrerrors.New(joynrerrors.DiscoveryFailed, "no provider advertises keyword %q", keyword)
}

func selectLocalOnly(_ discovery.Qos, candidates []discovery.EntryWithMetaInfo) (discovery.EntryWithMetaInfo, bool, *joynrerrors.Error) {
	for _, c := range candidates {
		if c.IsLocal {
			return c, true, nil
		}
	}
	return discovery.EntryWithMetaInfo{}, false, joynrerrors.New(joynrerrors.DiscoveryFailed, "no local provider found")
}
