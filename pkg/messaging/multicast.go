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

package messaging

import "strings"

const (
	multicastSeparator  = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "*"
)

// BuildMulticastID constructs the deterministic multicastId string
// "providerId/multicastName[/partition]*" per §3/§6. Partitions are not
// validated here; ValidatePartitions should be called first at the API
// boundary where a caller-supplied partition list is accepted.
func BuildMulticastID(providerParticipantID, multicastName string, partitions []string) string {
	parts := append([]string{providerParticipantID, multicastName}, partitions...)
	return strings.Join(parts, multicastSeparator)
}

// ValidatePartitions reports whether every partition segment is either the
// single-level wildcard "+", the (only-if-last) multi-level wildcard "*", or
// matches [A-Za-z0-9_]+.
func ValidatePartitions(partitions []string) bool {
	for i, p := range partitions {
		if p == singleLevelWildcard {
			continue
		}
		if p == multiLevelWildcard {
			if i != len(partitions)-1 {
				return false
			}
			continue
		}
		if p == "" || !isWordSegment(p) {
			return false
		}
	}
	return true
}

func isWordSegment(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

// MatchesMulticastID reports whether a receiver's subscription pattern
// (e.g. "P/m/+/sensors" or "P/m/*") matches a concrete published
// multicastId, per the segment-by-segment rule in §3/§9: a terminal "*"
// matches any remaining suffix (including zero segments), "+" matches
// exactly one segment, everything else must match literally.
func MatchesMulticastID(pattern, published string) bool {
	patternSegs := strings.Split(pattern, multicastSeparator)
	publishedSegs := strings.Split(published, multicastSeparator)

	for i, seg := range patternSegs {
		if seg == multiLevelWildcard {
			return true
		}
		if i >= len(publishedSegs) {
			return false
		}
		if seg == singleLevelWildcard {
			continue
		}
		if seg != publishedSegs[i] {
			return false
		}
	}
	return len(patternSegs) == len(publishedSegs)
}
