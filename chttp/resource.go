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

package chttp

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Resource is an immutable handle on a server location: a base URL plus a
// list of path segments. Requests made through a Resource are dispatched by
// its Requester.
type Resource struct {
	client   Requester
	base     *url.URL
	segments []string
}

// NewResource returns a resource rooted at base, below which segments are
// appended. Each segment is escaped according to EncodeDocID.
func NewResource(client Requester, base *url.URL, segments ...string) *Resource {
	b := *base
	b.RawQuery = ""
	b.Fragment = ""
	return &Resource{
		client:   client,
		base:     &b,
		segments: append([]string(nil), segments...),
	}
}

// Child returns a new resource with segments appended to r's segments.
func (r *Resource) Child(segments ...string) *Resource {
	s := make([]string, 0, len(r.segments)+len(segments))
	s = append(s, r.segments...)
	s = append(s, segments...)
	return &Resource{
		client:   r.client,
		base:     r.base,
		segments: s,
	}
}

// Segments returns a copy of the resource's path segments.
func (r *Resource) Segments() []string {
	return append([]string(nil), r.segments...)
}

// Requester returns the Requester used to dispatch requests.
func (r *Resource) Requester() Requester {
	return r.client
}

// URL returns the resource's full URL, with query appended.
func (r *Resource) URL(query url.Values) *url.URL {
	u := *r.base
	path := strings.TrimSuffix(u.Path, "/")
	rawPath := strings.TrimSuffix(u.EscapedPath(), "/")
	for _, segment := range r.segments {
		path += "/" + segment
		rawPath += "/" + EncodeDocID(segment)
	}
	if path == "" {
		path, rawPath = "/", "/"
	}
	u.Path = path
	u.RawPath = rawPath
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

func (r *Resource) String() string {
	return r.URL(nil).String()
}

// Do issues a request against the resource. HTTP error statuses are not
// converted to errors.
func (r *Resource) Do(ctx context.Context, method string, opts *Options) (*http.Response, error) {
	return r.client.Request(ctx, method, r.URL(nil), opts)
}

// DoJSON issues a request against the resource, checks the response status,
// and decodes the JSON response body into i.
func (r *Resource) DoJSON(ctx context.Context, method string, opts *Options, i interface{}) (*http.Response, error) {
	return doJSON(ctx, r.client, method, r.URL(nil), opts, i)
}

// DoError issues a request against the resource and checks the response
// status. The response body is closed.
func (r *Resource) DoError(ctx context.Context, method string, opts *Options) (*http.Response, error) {
	return doError(ctx, r.client, method, r.URL(nil), opts)
}
