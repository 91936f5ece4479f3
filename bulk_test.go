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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gitlab.com/flimzy/testy"

	"github.com/couchkit/couchdb/chttp"
)

func TestBulkDocsRequest(t *testing.T) {
	tests := []struct {
		name   string
		docs   []interface{}
		opts   *BulkDocsOptions
		body   string
		query  url.Values
		status int
		err    string
	}{
		{
			name: "verbatim docs",
			docs: []interface{}{`{"_id": "foo"}`, `{"_id": "bar"}`},
			body: `{"docs": [{"_id": "foo"},{"_id": "bar"}]}`,
		},
		{
			name: "all or nothing",
			docs: []interface{}{`{"_id": "foo"}`, `{"_id": "bar"}`},
			opts: &BulkDocsOptions{AllOrNothing: Bool(true)},
			body: `{"all_or_nothing": true, "docs": [{"_id": "foo"},{"_id": "bar"}]}`,
		},
		{
			name: "explicit all or nothing false",
			docs: []interface{}{`{"_id": "foo"}`},
			opts: &BulkDocsOptions{AllOrNothing: Bool(false)},
			body: `{"all_or_nothing": false, "docs": [{"_id": "foo"}]}`,
		},
		{
			name: "document objects",
			docs: []interface{}{
				map[string]interface{}{"_id": "foo"},
				map[string]interface{}{"_id": "bar"},
			},
			body: `{"docs": [{"_id": "foo"},{"_id": "bar"}]}`,
		},
		{
			name: "document objects with all or nothing",
			docs: []interface{}{map[string]interface{}{"_id": "foo"}, map[string]interface{}{"_id": "bar"}},
			opts: &BulkDocsOptions{AllOrNothing: Bool(true)},
			body: `{"all_or_nothing": true, "docs": [{"_id": "foo"},{"_id": "bar"}]}`,
		},
		{
			name: "marshaled docs",
			docs: []interface{}{
				map[string]interface{}{"_id": "foo", "n": 1},
				[]byte(`{"_id":"bar"}`),
				struct {
					ID string `json:"_id"`
				}{ID: "baz"},
			},
			body: `{"docs": [{"_id": "foo", "n": 1},{"_id":"bar"},{"_id": "baz"}]}`,
		},
		{
			name: "no docs",
			body: `{"docs": []}`,
		},
		{
			name:  "new edits",
			docs:  []interface{}{`{"_id": "foo", "_rev": "1-abc"}`},
			opts:  &BulkDocsOptions{NewEdits: Bool(false)},
			body:  `{"docs": [{"_id": "foo", "_rev": "1-abc"}]}`,
			query: url.Values{"new_edits": {"false"}},
		},
		{
			name:   "unmarshalable doc",
			docs:   []interface{}{`{"_id": "foo"}`, make(chan int)},
			status: http.StatusBadRequest,
			err:    "json: unsupported type: chan int",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{status: http.StatusCreated, body: `[]`}
			results, err := newTestDB(req).BulkDocs(context.Background(), tt.docs, tt.opts)
			testy.StatusError(t, tt.err, tt.status, err)
			defer results.Close() // nolint: errcheck
			if req.method != http.MethodPost {
				t.Errorf("Unexpected method: %s", req.method)
			}
			if got := req.url.String(); got != "http://example.com/db/_bulk_docs" {
				t.Errorf("Unexpected URL: %s", got)
			}
			if d := testy.DiffText(tt.body, string(req.reqBody)); d != nil {
				t.Errorf("Unexpected body:\n%s", d)
			}
			if d := testy.DiffInterface(tt.query, req.query); d != nil {
				t.Errorf("Unexpected query:\n%s", d)
			}
		})
	}
}

func TestBulkDocsBodyIsLazy(t *testing.T) {
	body := chttp.ChunkReader(&bulkDocsBody{docs: []interface{}{`{"a":1}`, make(chan int)}})
	buf := make([]byte, 64)
	n, err := body.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != `{"docs": [` {
		t.Errorf("Unexpected first chunk: %s", got)
	}
	n, err = body.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != `{"a":1}` {
		t.Errorf("Unexpected second chunk: %s", got)
	}
	_, err = body.Read(buf)
	testy.StatusError(t, "json: unsupported type: chan int", http.StatusBadRequest, err)
}

func TestBulkDocsEncodingFailure(t *testing.T) {
	var calls int
	c := newCustomClient(t, func(req *http.Request) (*http.Response, error) {
		calls++
		if _, err := io.ReadAll(req.Body); err != nil {
			return nil, err
		}
		return &http.Response{StatusCode: http.StatusCreated, Body: Body(`[]`), Request: req}, nil
	})
	db, err := c.DB("db")
	if err != nil {
		t.Fatal(err)
	}
	results, err := db.BulkDocs(context.Background(), []interface{}{map[string]interface{}{"_id": "foo"}, make(chan int)}, nil)
	if results != nil {
		t.Error("Expected no results")
	}
	if calls != 1 {
		t.Errorf("Expected one request, got %d", calls)
	}
	if status := statusCode(err); status != http.StatusBadRequest {
		t.Errorf("Unexpected status: %d", status)
	}
	testy.StatusError(t, "json: unsupported type: chan int", http.StatusBadRequest, err)
}

func TestBulkDocsFullCommit(t *testing.T) {
	req := &fakeRequester{status: http.StatusCreated, body: `[]`}
	results, err := newTestDB(req).BulkDocs(context.Background(), nil, &BulkDocsOptions{FullCommit: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = results.Close()
	if !req.opts.FullCommit {
		t.Error("Expected full commit to be requested")
	}
}

func readBulkResults(results *BulkResults) ([]BulkResult, error) {
	var out []BulkResult
	for {
		var result BulkResult
		if err := results.Next(&result); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, result)
	}
}

type expectedResult struct {
	ID     string
	Rev    string
	Status int
	Err    string
}

func TestBulkDocsResponse(t *testing.T) {
	tests := []struct {
		name     string
		req      *fakeRequester
		expected []expectedResult
		status   int
		err      string
	}{
		{
			name: "success",
			req: &fakeRequester{
				status: http.StatusCreated,
				body: `[{"ok":true,"id":"foo","rev":"1-abc"},
{"id":"bar","error":"conflict","reason":"Document update conflict."},
{"id":"baz","error":"forbidden","reason":"Only admins may do that."}]`,
			},
			expected: []expectedResult{
				{ID: "foo", Rev: "1-abc"},
				{ID: "bar", Status: http.StatusConflict, Err: "Document update conflict."},
				{ID: "baz", Status: http.StatusForbidden, Err: "Only admins may do that."},
			},
		},
		{
			name: "rejected",
			req: &fakeRequester{
				status: http.StatusExpectationFailed,
				body:   `[{"id":"foo","error":"forbidden","reason":"invalid doc"}]`,
			},
			expected: []expectedResult{
				{ID: "foo", Status: http.StatusForbidden, Err: "invalid doc"},
			},
			status: http.StatusExpectationFailed,
			err:    "Expectation Failed: one or more document was rejected",
		},
		{
			name: "bad request",
			req: &fakeRequester{
				status: http.StatusBadRequest,
				body:   `{"error":"bad_request","reason":"Missing JSON list of 'docs'"}`,
			},
			status: http.StatusBadRequest,
			err:    "Bad Request: Missing JSON list of 'docs'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := newTestDB(tt.req).BulkDocs(context.Background(), []interface{}{`{}`}, nil)
			if tt.expected == nil {
				testy.StatusError(t, tt.err, tt.status, err)
			} else if status := testy.StatusCode(err); status != tt.status {
				t.Fatalf("Unexpected status %d: %v", status, err)
			}
			if results == nil {
				t.Fatal("Expected results")
			}
			got, err := readBulkResults(results)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d results, got %d", len(tt.expected), len(got))
			}
			for i, want := range tt.expected {
				if got[i].ID != want.ID || got[i].Rev != want.Rev {
					t.Errorf("result %d: unexpected id/rev %s/%s", i, got[i].ID, got[i].Rev)
				}
				if status := testy.StatusCode(got[i].Error); status != want.Status {
					t.Errorf("result %d: unexpected status %d", i, status)
				}
				if want.Err != "" && got[i].Error.Error() != want.Err {
					t.Errorf("result %d: unexpected error %s", i, got[i].Error)
				}
			}
		})
	}
}

func TestBulkDocsUnexpectedSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)
	ctx := logger.WithContext(context.Background())
	req := &fakeRequester{status: http.StatusAccepted, body: `[{"ok":true,"id":"foo","rev":"1-abc"}]`}
	results, err := newTestDB(req).BulkDocs(ctx, []interface{}{`{"_id":"foo"}`}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := readBulkResults(results)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "foo" {
		t.Errorf("Unexpected results: %v", got)
	}
	if !strings.Contains(buf.String(), "unexpected _bulk_docs response code") {
		t.Errorf("Expected a warning to be logged, got: %s", buf.String())
	}
}
