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
	"encoding/json"
	"io"
	"net/http"
	"sync"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/pkg/errors"
)

type parser interface {
	decodeItem(interface{}, *json.Decoder) error
	parseMeta(interface{}, *json.Decoder, string) error
}

// iter streams the items of a JSON array found under key in the top-level
// response object, or of the top-level array itself if key is empty. Other
// top-level keys, before or after the array, are passed to
// parser.parseMeta.
type iter struct {
	meta   interface{}
	key    string
	body   io.ReadCloser
	parser parser

	dec *json.Decoder

	mu     sync.Mutex
	closed bool
}

func newIter(meta interface{}, key string, body io.ReadCloser, parser parser) *iter {
	return &iter{
		meta:   meta,
		key:    key,
		body:   body,
		parser: parser,
	}
}

// next decodes the next item. At the end of the array, the remaining
// metadata is read, the body closed, and io.EOF returned. Malformed or
// truncated responses are reported with a 502 status.
func (i *iter) next(item interface{}) error {
	if i.isClosed() {
		return io.EOF
	}
	err := i.advance(item)
	if err == nil {
		return nil
	}
	_ = i.Close()
	if err == io.EOF {
		return io.EOF
	}
	if _, ok := err.(*kivik.Error); ok {
		return err
	}
	return &kivik.Error{Status: http.StatusBadGateway, Err: err}
}

func (i *iter) advance(item interface{}) error {
	if i.dec == nil {
		i.dec = json.NewDecoder(i.body)
		if err := i.openArray(); err != nil {
			return truncated(err)
		}
	}
	if i.dec.More() {
		return truncated(i.parser.decodeItem(item, i.dec))
	}
	if err := i.closeArray(); err != nil {
		return truncated(err)
	}
	return io.EOF
}

// truncated converts io.EOF, which the decoder returns for a body that ends
// early, so that it cannot be mistaken for the end of the array.
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// openArray reads up to and including the opening bracket of the array.
func (i *iter) openArray() error {
	if i.key == "" {
		return expectDelim(i.dec, '[')
	}
	if err := expectDelim(i.dec, '{'); err != nil {
		return err
	}
	for {
		key, ok, err := i.nextKey()
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("key %q not found in response", i.key)
		}
		if key == i.key {
			return expectDelim(i.dec, '[')
		}
		if err := i.parser.parseMeta(i.meta, i.dec, key); err != nil {
			return err
		}
	}
}

// closeArray reads the closing bracket of the array, and any metadata which
// follows it.
func (i *iter) closeArray() error {
	if err := expectDelim(i.dec, ']'); err != nil {
		return err
	}
	if i.key == "" {
		return nil
	}
	for {
		key, ok, err := i.nextKey()
		if err != nil || !ok {
			return err
		}
		if err := i.parser.parseMeta(i.meta, i.dec, key); err != nil {
			return err
		}
	}
}

// nextKey returns the next key of the current object. ok is false at the end
// of the object.
func (i *iter) nextKey() (key string, ok bool, err error) {
	t, err := i.dec.Token()
	if err != nil {
		return "", false, err
	}
	switch v := t.(type) {
	case string:
		return v, true, nil
	case json.Delim:
		if v == '}' {
			return "", false, nil
		}
	}
	return "", false, errors.Errorf("Unexpected JSON token: (%T) %v", t, t)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	t, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := t.(json.Delim)
	if !ok {
		return errors.Errorf("Unexpected token %T: %v", t, t)
	}
	if d != want {
		return errors.Errorf("Unexpected JSON delimiter: %c", d)
	}
	return nil
}

func (i *iter) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Close releases the response body. Subsequent calls to next return io.EOF.
// It is safe to call Close from another goroutine, to abandon a blocked
// read.
func (i *iter) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.mu.Unlock()
	return i.body.Close()
}
