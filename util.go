// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package couchdb

import (
	"encoding/json"
	"net/http"

	kivik "github.com/go-kivik/kivik/v4"
)

// toJSON converts a string, []byte, json.RawMessage, or an arbitrary type into
// JSON marshaled data. The first three are assumed to already be valid JSON,
// and are returned as-is. Marshaled values use ": " and ", " separators.
func toJSON(i interface{}) ([]byte, error) {
	switch t := i.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case json.RawMessage:
		return t, nil
	}
	data, err := json.Marshal(i)
	if err != nil {
		return nil, &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	return spaceJSON(data), nil
}

// spaceJSON adds a space after each member and element separator of compact
// JSON. Separators inside strings are left alone.
func spaceJSON(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/4)
	var inString, escaped bool
	for _, c := range compact {
		out = append(out, c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ':' || c == ','):
			out = append(out, ' ')
		}
	}
	return out
}
