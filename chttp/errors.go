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
	"fmt"
	"io"
	"mime"
	"net/http"
)

// HTTPError is an error that represents an unexpected HTTP response status.
type HTTPError struct {
	Code int
	// Name is CouchDB's short error name, such as "not_found".
	Name   string `json:"error"`
	Reason string `json:"reason"`
	// Body is the raw response body, if any.
	Body []byte `json:"-"`
}

func (e *HTTPError) Error() string {
	if e.Reason == "" {
		if statusText := http.StatusText(e.Code); statusText != "" {
			return statusText
		}
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	if statusText := http.StatusText(e.Code); statusText != "" {
		return fmt.Sprintf("%s: %s", statusText, e.Reason)
	}
	return e.Reason
}

// StatusCode returns the embedded status code.
func (e *HTTPError) StatusCode() int {
	return e.Code
}

// HTTPStatus returns the embedded status code, as expected by
// kivik.HTTPStatus.
func (e *HTTPError) HTTPStatus() int {
	return e.Code
}

type statusCoder interface {
	HTTPStatus() int
}

// ResponseError returns an *HTTPError for any response whose status is not
// 2xx, or nil otherwise. On error, the response body is consumed and closed.
func ResponseError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return UnexpectedStatus(resp)
}

// UnexpectedStatus returns an *HTTPError describing resp, regardless of its
// status. The response body is consumed and closed.
func UnexpectedStatus(resp *http.Response) error {
	httpErr := &HTTPError{}
	if resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
		httpErr.Body, _ = io.ReadAll(resp.Body)
	}
	isHead := resp.Request != nil && resp.Request.Method == http.MethodHead
	if !isHead && len(httpErr.Body) > 0 {
		if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct == typeJSON {
			_ = json.Unmarshal(httpErr.Body, httpErr)
		}
	}
	httpErr.Code = resp.StatusCode
	return httpErr
}
