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
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/rs/zerolog"

	"github.com/couchkit/couchdb/chttp"
)

const prefixDesign = "_design/"

// AllDocs returns the rows of the _all_docs view.
//
// With no keys, all rows within the range given by opts are returned. A
// single key is sent as the key query parameter, and more than one key is
// POSTed in the request body.
func (d *DB) AllDocs(ctx context.Context, opts *ViewOptions, keys ...interface{}) (*Rows, error) {
	return viewQuery(ctx, d.res.Child("_all_docs"), opts, keys)
}

// Query returns the rows of a view. The _design/ prefix of ddoc is optional.
// Keys are handled as for AllDocs.
func (d *DB) Query(ctx context.Context, ddoc, view string, opts *ViewOptions, keys ...interface{}) (*Rows, error) {
	ddoc = strings.TrimPrefix(ddoc, prefixDesign)
	if ddoc == "" {
		return nil, missingArg("ddoc")
	}
	if view == "" {
		return nil, missingArg("view")
	}
	return viewQuery(ctx, d.res.Child(prefixDesign+ddoc, "_view", view), opts, keys)
}

func viewQuery(ctx context.Context, res *chttp.Resource, opts *ViewOptions, keys []interface{}) (*Rows, error) {
	query, err := opts.Values()
	if err != nil {
		return nil, err
	}
	method := http.MethodGet
	reqOpts := &chttp.Options{}
	switch len(keys) {
	case 0:
	case 1:
		key, err := json.Marshal(keys[0])
		if err != nil {
			return nil, &kivik.Error{Status: http.StatusBadRequest, Err: err}
		}
		if query == nil {
			query = url.Values{}
		}
		query.Set("key", string(key))
	default:
		method = http.MethodPost
		reqOpts.JSON = map[string]interface{}{"keys": keys}
	}
	reqOpts.Query = query
	resp, err := res.Do(ctx, method, reqOpts)
	if err != nil {
		return nil, err
	}
	if err := chttp.ResponseError(resp); err != nil {
		return nil, err
	}
	return newRows(zerolog.Ctx(ctx), resp.Body), nil
}
