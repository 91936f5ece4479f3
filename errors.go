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
	"net/http"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func missingArg(arg string) error {
	return &kivik.Error{Status: http.StatusBadRequest, Err: errors.Errorf("couchdb: %s required", arg)}
}

// statusCode returns the HTTP status code embedded in err, 0 for a nil error,
// or 500 if err carries no status.
func statusCode(err error) int {
	return kivik.HTTPStatus(err)
}

// couchError converts an error name and reason, as found in per-row and
// per-document results, to an error carrying the matching HTTP status.
func couchError(logger *zerolog.Logger, name, reason string) error {
	var status int
	switch name {
	case "conflict":
		status = http.StatusConflict
	case "forbidden":
		status = http.StatusForbidden
	case "unauthorized":
		status = http.StatusUnauthorized
	case "not_found":
		status = http.StatusNotFound
	case "not_implemented":
		status = http.StatusNotImplemented
	default:
		status = http.StatusInternalServerError
		logger.Warn().
			Str("error", name).
			Str("reason", reason).
			Msg("unknown CouchDB error")
	}
	msg := reason
	if msg == "" {
		msg = name
	}
	return &kivik.Error{Status: status, Err: errors.New(msg)}
}
