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
	"bytes"
	"context"
	"io"
	"net/http"
)

// ClientTrace is a set of hooks run at various stages of a request made by a
// Client. Any hook may be nil. Hooks receive copies, so they cannot alter
// the request or response seen by the caller.
type ClientTrace struct {
	// HTTPRequest is called with a copy of each request about to be sent.
	// The body is always nil, as request bodies may be streamed.
	HTTPRequest func(*http.Request)

	// HTTPRequestFailed is called with a copy of the request when no
	// response was received, along with the transport error.
	HTTPRequestFailed func(*http.Request, error)

	// HTTPResponse is called with a copy of each response, without its body.
	HTTPResponse func(*http.Response)

	// HTTPResponseBody is called with a copy of each response, including a
	// copy of its body. The body is read into memory to do so, so this is
	// expensive for large responses.
	HTTPResponseBody func(*http.Response)
}

type clientTraceKey struct{}

// WithClientTrace returns a copy of ctx, which causes requests made with it
// to call the hooks in ct.
func WithClientTrace(ctx context.Context, ct *ClientTrace) context.Context {
	if ct == nil {
		panic("nil trace")
	}
	return context.WithValue(ctx, clientTraceKey{}, ct)
}

// ContextClientTrace returns the ClientTrace associated with ctx, or nil.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	ct, _ := ctx.Value(clientTraceKey{}).(*ClientTrace)
	return ct
}

func requestCopy(r *http.Request) *http.Request {
	c := r.Clone(r.Context())
	c.Body = nil
	c.GetBody = nil
	return c
}

func (t *ClientTrace) httpRequest(r *http.Request) {
	if t.HTTPRequest != nil {
		t.HTTPRequest(requestCopy(r))
	}
}

func (t *ClientTrace) httpRequestFailed(r *http.Request, err error) {
	if t.HTTPRequestFailed != nil {
		t.HTTPRequestFailed(requestCopy(r), err)
	}
}

func (t *ClientTrace) httpResponse(r *http.Response) {
	if t.HTTPResponse == nil {
		return
	}
	c := *r
	c.Body = nil
	t.HTTPResponse(&c)
}

// httpResponseBody buffers the body of r, so that both the hook and the
// caller may read it.
func (t *ClientTrace) httpResponseBody(r *http.Response) {
	if t.HTTPResponseBody == nil {
		return
	}
	c := *r
	if r.Body != nil {
		replay := bufferBody(r.Body)
		r.Body = replay()
		c.Body = replay()
	}
	t.HTTPResponseBody(&c)
}

// bufferBody reads and closes body. The returned function produces
// independent copies of it, which replay any read or close error as well.
func bufferBody(body io.ReadCloser) func() io.ReadCloser {
	data, readErr := io.ReadAll(body)
	closeErr := body.Close()
	return func() io.ReadCloser {
		return newReplay(data, readErr, closeErr)
	}
}

func newReplay(data []byte, readErr, closeErr error) io.ReadCloser {
	return &replay{
		r:        bytes.NewReader(data),
		readErr:  readErr,
		closeErr: closeErr,
	}
}

type replay struct {
	r        *bytes.Reader
	readErr  error
	closeErr error
}

func (r *replay) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == io.EOF && r.readErr != nil {
		err = r.readErr
	}
	return n, err
}

func (r *replay) Close() error {
	return r.closeErr
}
