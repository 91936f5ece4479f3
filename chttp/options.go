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
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/pkg/errors"
)

// Options are optional parameters which may be sent with a request.
type Options struct {
	// Accept sets the request's Accept header. Defaults to "application/json".
	// To specify any, use "*/*".
	Accept string

	// ContentType sets the requests's Content-Type header. Defaults to "application/json".
	ContentType string

	// ContentLength, if set, sets the ContentLength of the request
	ContentLength int64

	// Body sets the body of the request. Use ChunkReader to stream a body
	// that is produced incrementally.
	Body io.ReadCloser

	// GetBody is a function to set the body, and can be used on retries. If
	// set, Body is ignored.
	GetBody func() (io.ReadCloser, error)

	// JSON is an arbitrary data type which is marshaled to the request's body.
	// It an error to set both Body and JSON on the same request. The body is
	// encoded while the request is on the wire.
	JSON interface{}

	// FullCommit adds the X-Couch-Full-Commit: true header to requests
	FullCommit bool

	// IfNoneMatch adds the If-None-Match header. The value will be quoted if
	// it is not already.
	IfNoneMatch string

	// Query is appended to the exiting url, if present. If the passed url
	// already contains query parameters, the values in Query are appended.
	// No merging takes place.
	Query url.Values

	// Header is a list of default headers to be set on the request.
	Header http.Header
}

func (o *Options) body() (io.Reader, func() (io.ReadCloser, error), error) {
	switch {
	case o.GetBody != nil:
		body, err := o.GetBody()
		return body, o.GetBody, err
	case o.JSON != nil && o.Body != nil:
		return nil, nil, &kivik.Error{Status: http.StatusBadRequest, Err: errors.New("must not specify both Body and JSON options")}
	case o.JSON != nil:
		return EncodeBody(o.JSON), BodyEncoder(o.JSON), nil
	case o.Body != nil:
		return o.Body, nil, nil
	}
	return nil, nil, nil
}

// EncodeBody JSON encodes i to an io.ReadCloser. The encoding happens in a
// separate goroutine as the body is read, so an encoding error surfaces as a
// read error.
func EncodeBody(i interface{}) io.ReadCloser {
	r, w := io.Pipe()
	go func() {
		err := json.NewEncoder(w).Encode(i)
		if err != nil {
			err = &kivik.Error{Status: http.StatusBadRequest, Err: err}
		}
		_ = w.CloseWithError(err)
	}()
	return r
}

// BodyEncoder returns a function which returns the encoded body. It is meant
// to be used as a http.Request.GetBody value.
func BodyEncoder(i interface{}) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return EncodeBody(i), nil
	}
}
