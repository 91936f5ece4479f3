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
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/couchkit/couchdb/chttp"
)

// fakeRequester records the last request made through it, and replies with
// a canned response.
type fakeRequester struct {
	status int
	header http.Header
	body   string
	err    error

	calls  int
	method string
	url    *url.URL
	query  url.Values
	opts   *chttp.Options
	// reqBody is the fully read request body.
	reqBody []byte
}

var _ chttp.Requester = &fakeRequester{}

func (r *fakeRequester) Request(_ context.Context, method string, u *url.URL, opts *chttp.Options) (*http.Response, error) {
	r.calls++
	r.method = method
	r.url = u
	r.opts = opts
	r.query = nil
	r.reqBody = nil
	if opts != nil {
		r.query = opts.Query
		body, err := readBody(opts)
		if err != nil {
			return nil, err
		}
		r.reqBody = body
	}
	if r.err != nil {
		return nil, r.err
	}
	header := r.header
	if header == nil {
		header = http.Header{"Content-Type": {"application/json"}}
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       Body(r.body),
		Request:    &http.Request{Method: method, URL: u},
	}, nil
}

func readBody(opts *chttp.Options) ([]byte, error) {
	var body io.ReadCloser
	switch {
	case opts.GetBody != nil:
		var err error
		if body, err = opts.GetBody(); err != nil {
			return nil, err
		}
	case opts.JSON != nil:
		body = chttp.EncodeBody(opts.JSON)
	case opts.Body != nil:
		body = opts.Body
	default:
		return nil, nil
	}
	defer body.Close() // nolint: errcheck
	return io.ReadAll(body)
}

func newTestDB(r *fakeRequester) *DB {
	base, _ := url.Parse("http://example.com/")
	return NewDBFromResource(chttp.NewResource(r, base, "db"))
}

type customTransport func(*http.Request) (*http.Response, error)

var _ http.RoundTripper = customTransport(nil)

func (t customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t(req)
}

func newCustomClient(t *testing.T, fn func(*http.Request) (*http.Response, error)) *Client {
	t.Helper()
	c, err := New("http://example.com/", chttp.WithHTTPClient(&http.Client{Transport: customTransport(fn)}))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestClient(t *testing.T, resp *http.Response, err error) *Client {
	t.Helper()
	return newCustomClient(t, func(req *http.Request) (*http.Response, error) {
		if err != nil {
			return nil, err
		}
		resp.Request = req
		return resp, nil
	})
}

func Body(str string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(str))
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
