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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMulticastID(t *testing.T) {
	assert.Equal(t, "P/m", BuildMulticastID("P", "m", nil))
	assert.Equal(t, "P/m/a/b", BuildMulticastID("P", "m", []string{"a", "b"}))
}

func TestValidatePartitions(t *testing.T) {
	assert.True(t, ValidatePartitions([]string{"a", "b_1", "+"}))
	assert.True(t, ValidatePartitions([]string{"a", "*"}))
	assert.False(t, ValidatePartitions([]string{"*", "a"}), "multi-level wildcard must be terminal")
	assert.False(t, ValidatePartitions([]string{"bad segment"}))
	assert.False(t, ValidatePartitions([]string{""}))
}

func TestMatchesMulticastID(t *testing.T) {
	cases := []struct {
		pattern, published string
		want               bool
	}{
		{"P/m/a", "P/m/a", true},
		{"P/m/a", "P/m/b", false},
		{"P/m/+", "P/m/a", true},
		{"P/m/+", "P/m/a/b", false},
		{"P/m/*", "P/m", true},
		{"P/m/*", "P/m/a/b/c", true},
		{"P/m", "P/m/a", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchesMulticastID(tc.pattern, tc.published), "pattern=%s published=%s", tc.pattern, tc.published)
	}
}
