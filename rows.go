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
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// Row is a single row of a view or _all_docs result.
type Row struct {
	ID    string
	Key   json.RawMessage
	Value json.RawMessage
	// Doc is only populated when the include_docs option is set.
	Doc json.RawMessage
	// Error is set for rows the server could not produce, such as a
	// requested key which does not exist.
	Error error
}

// ScanKey unmarshals the row's key into dest.
func (r *Row) ScanKey(dest interface{}) error {
	return json.Unmarshal(r.Key, dest)
}

// ScanValue unmarshals the row's value into dest.
func (r *Row) ScanValue(dest interface{}) error {
	return json.Unmarshal(r.Value, dest)
}

// ScanDoc unmarshals the row's document into dest.
func (r *Row) ScanDoc(dest interface{}) error {
	return json.Unmarshal(r.Doc, dest)
}

type rowsMeta struct {
	offset    int64
	totalRows int64
	updateSeq string
	warning   string
}

// Rows is a feed of rows, decoded from the response body as they are
// requested. Rows must be closed when no longer needed.
type Rows struct {
	*iter
	meta *rowsMeta
}

func newRows(logger *zerolog.Logger, body io.ReadCloser) *Rows {
	meta := &rowsMeta{}
	return &Rows{
		iter: newIter(meta, "rows", body, &rowParser{logger: logger}),
		meta: meta,
	}
}

// Next decodes the next row into row. It returns io.EOF after the last row,
// at which point the feed is closed.
func (r *Rows) Next(row *Row) error {
	return r.iter.next(row)
}

// Offset returns the offset of the first row, as reported by the server.
// Metadata is available once Next has been called.
func (r *Rows) Offset() int64 {
	return r.meta.offset
}

// TotalRows returns the total number of rows in the view.
func (r *Rows) TotalRows() int64 {
	return r.meta.totalRows
}

// UpdateSeq returns the database sequence the view reflects, if the
// update_seq option was set.
func (r *Rows) UpdateSeq() string {
	return r.meta.updateSeq
}

// Warning returns a warning reported by the server, if any.
func (r *Rows) Warning() string {
	return r.meta.warning
}

type rowParser struct {
	logger *zerolog.Logger
}

var _ parser = &rowParser{}

func (p *rowParser) decodeItem(i interface{}, dec *json.Decoder) error {
	row := i.(*Row)
	var raw struct {
		ID     string          `json:"id"`
		Key    json.RawMessage `json:"key"`
		Value  json.RawMessage `json:"value"`
		Doc    json.RawMessage `json:"doc"`
		Error  string          `json:"error"`
		Reason string          `json:"reason"`
	}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*row = Row{
		ID:    raw.ID,
		Key:   raw.Key,
		Value: raw.Value,
		Doc:   raw.Doc,
	}
	if raw.Error != "" {
		row.Error = couchError(p.logger, raw.Error, raw.Reason)
	}
	return nil
}

// parseMeta parses result metadata. Unknown keys are skipped.
func (p *rowParser) parseMeta(i interface{}, dec *json.Decoder, key string) error {
	meta := i.(*rowsMeta)
	switch key {
	case "update_seq":
		return readSeq(dec, &meta.updateSeq)
	case "offset":
		return dec.Decode(&meta.offset)
	case "total_rows":
		return dec.Decode(&meta.totalRows)
	case "warning":
		return dec.Decode(&meta.warning)
	}
	var skip json.RawMessage
	return dec.Decode(&skip)
}

// readSeq reads a sequence ID, which is a number in CouchDB 1.x, and a
// string in later versions.
func readSeq(dec *json.Decoder, seq *string) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*seq = string(bytes.Trim(raw, `"`))
	return nil
}
