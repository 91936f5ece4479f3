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
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/couchkit/couchdb/chttp"
)

// BulkDocsOptions are the optional parameters of a _bulk_docs request.
type BulkDocsOptions struct {
	// AllOrNothing, if set, is sent as the all_or_nothing field of the
	// request body.
	AllOrNothing *bool
	// NewEdits, if set, is sent as the new_edits query parameter. Set it to
	// false to store documents with the revisions given, as replication
	// does.
	NewEdits *bool
	// FullCommit sets the X-Couch-Full-Commit header.
	FullCommit bool
}

// BulkResult is the outcome of a single document update.
type BulkResult struct {
	ID    string
	Rev   string
	Error error
}

// BulkResults is a feed of per-document results, decoded from the response
// body as they are requested. BulkResults must be closed when no longer
// needed.
type BulkResults struct {
	*iter
}

// Next decodes the next result into result. It returns io.EOF after the last
// result, at which point the feed is closed.
func (r *BulkResults) Next(result *BulkResult) error {
	return r.iter.next(result)
}

type bulkParser struct {
	logger *zerolog.Logger
}

var _ parser = &bulkParser{}

func (p *bulkParser) decodeItem(i interface{}, dec *json.Decoder) error {
	update := i.(*BulkResult)
	var updateResult struct {
		ID     string `json:"id"`
		Rev    string `json:"rev"`
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := dec.Decode(&updateResult); err != nil {
		return err
	}
	update.ID = updateResult.ID
	update.Rev = updateResult.Rev
	update.Error = nil
	if updateResult.Error != "" {
		update.Error = couchError(p.logger, updateResult.Error, updateResult.Reason)
	}
	return nil
}

func (p *bulkParser) parseMeta(interface{}, *json.Decoder, string) error {
	// The result is a bare array; there is no metadata.
	return nil
}

const (
	bulkHeader = iota
	bulkDocs
	bulkDone
)

// bulkDocsBody produces the _bulk_docs request body one document at a time:
//
//	{"all_or_nothing": true, "docs": [{...},{...}]}
//
// with all_or_nothing present only when set.
type bulkDocsBody struct {
	docs         []interface{}
	allOrNothing *bool

	state int
	next  int
}

var _ chttp.Chunks = &bulkDocsBody{}

func (b *bulkDocsBody) Next() ([]byte, error) {
	switch b.state {
	case bulkHeader:
		b.state = bulkDocs
		if b.allOrNothing != nil {
			return []byte(`{"all_or_nothing": ` + strconv.FormatBool(*b.allOrNothing) + `, "docs": [`), nil
		}
		return []byte(`{"docs": [`), nil
	case bulkDocs:
		if b.next >= len(b.docs) {
			b.state = bulkDone
			return []byte("]}"), nil
		}
		doc, err := toJSON(b.docs[b.next])
		if err != nil {
			return nil, err
		}
		if b.next > 0 {
			doc = append([]byte{','}, doc...)
		}
		b.next++
		return doc, nil
	}
	return nil, io.EOF
}

// BulkDocs creates or updates docs in a single request. Documents given as
// string, []byte or json.RawMessage are sent verbatim; anything else is
// marshaled to JSON. The request body is encoded while it is sent.
//
// A 417 response, returned when all_or_nothing validation rejects a
// document, yields both the results and an *chttp.HTTPError.
func (d *DB) BulkDocs(ctx context.Context, docs []interface{}, opts *BulkDocsOptions) (*BulkResults, error) {
	if opts == nil {
		opts = &BulkDocsOptions{}
	}
	var query url.Values
	if opts.NewEdits != nil {
		query = url.Values{"new_edits": {strconv.FormatBool(*opts.NewEdits)}}
	}
	allOrNothing := opts.AllOrNothing
	reqOpts := &chttp.Options{
		GetBody: func() (io.ReadCloser, error) {
			return chttp.ChunkReader(&bulkDocsBody{docs: docs, allOrNothing: allOrNothing}), nil
		},
		FullCommit: opts.FullCommit,
		Query:      query,
	}
	logger := zerolog.Ctx(ctx)
	res, err := d.res.Child("_bulk_docs").Do(ctx, http.MethodPost, reqOpts)
	if err != nil {
		return nil, err
	}
	switch {
	case res.StatusCode == http.StatusCreated:
		// Nothing to do
	case res.StatusCode == http.StatusExpectationFailed:
		err = &chttp.HTTPError{
			Code:   http.StatusExpectationFailed,
			Reason: "one or more document was rejected",
		}
	case res.StatusCode < http.StatusMultipleChoices && res.StatusCode >= http.StatusOK:
		logger.Warn().
			Int("status", res.StatusCode).
			Str("db", d.name).
			Msg("unexpected _bulk_docs response code")
	default:
		// All other errors can consume the response body and return immediately
		return nil, chttp.ResponseError(res)
	}
	return &BulkResults{
		iter: newIter(nil, "", res.Body, &bulkParser{logger: logger}),
	}, err
}
