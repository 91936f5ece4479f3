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
	"fmt"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	kivik "github.com/go-kivik/kivik/v4"
	"github.com/pkg/errors"
)

// ViewOptions are the query parameters recognized by _all_docs and view
// queries. Nil fields are not sent. StartKey and EndKey are JSON encoded;
// all other values are sent as-is.
type ViewOptions struct {
	Attachments   *bool       `json:"attachments,omitempty"`
	Conflicts     *bool       `json:"conflicts,omitempty"`
	Descending    *bool       `json:"descending,omitempty"`
	EndKey        interface{} `json:"endkey,omitempty" validate:"-"`
	EndKeyDocID   *string     `json:"endkey_docid,omitempty"`
	IncludeDocs   *bool       `json:"include_docs,omitempty"`
	InclusiveEnd  *bool       `json:"inclusive_end,omitempty"`
	Limit         *int        `json:"limit,omitempty" validate:"omitempty,gte=0"`
	Skip          *int        `json:"skip,omitempty" validate:"omitempty,gte=0"`
	Stale         *string     `json:"stale,omitempty" validate:"omitempty,oneof=ok update_after"`
	StartKey      interface{} `json:"startkey,omitempty" validate:"-"`
	StartKeyDocID *string     `json:"startkey_docid,omitempty"`
	UpdateSeq     *bool       `json:"update_seq,omitempty"`
}

// Bool returns a pointer to b, for use in option structs.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i, for use in option structs.
func Int(i int) *int { return &i }

// String returns a pointer to s, for use in option structs.
func String(s string) *string { return &s }

type paramEncoding int

const (
	// encodePlain sends the value as-is.
	encodePlain paramEncoding = iota
	// encodeJSON sends the JSON encoding of the value.
	encodeJSON
)

type viewParam struct {
	name     string
	encoding paramEncoding
	// field returns a pointer to the option's field: a **bool, **int,
	// **string or *interface{}.
	field func(*ViewOptions) interface{}
}

// viewParams lists every recognized view option, in the order they are
// documented by CouchDB.
var viewParams = []viewParam{
	{name: "attachments", field: func(o *ViewOptions) interface{} { return &o.Attachments }},
	{name: "conflicts", field: func(o *ViewOptions) interface{} { return &o.Conflicts }},
	{name: "descending", field: func(o *ViewOptions) interface{} { return &o.Descending }},
	{name: "endkey", encoding: encodeJSON, field: func(o *ViewOptions) interface{} { return &o.EndKey }},
	{name: "endkey_docid", field: func(o *ViewOptions) interface{} { return &o.EndKeyDocID }},
	{name: "include_docs", field: func(o *ViewOptions) interface{} { return &o.IncludeDocs }},
	{name: "inclusive_end", field: func(o *ViewOptions) interface{} { return &o.InclusiveEnd }},
	{name: "limit", field: func(o *ViewOptions) interface{} { return &o.Limit }},
	{name: "skip", field: func(o *ViewOptions) interface{} { return &o.Skip }},
	{name: "stale", field: func(o *ViewOptions) interface{} { return &o.Stale }},
	{name: "startkey", encoding: encodeJSON, field: func(o *ViewOptions) interface{} { return &o.StartKey }},
	{name: "startkey_docid", field: func(o *ViewOptions) interface{} { return &o.StartKeyDocID }},
	{name: "update_seq", field: func(o *ViewOptions) interface{} { return &o.UpdateSeq }},
}

var viewParamsByName = func() map[string]viewParam {
	m := make(map[string]viewParam, len(viewParams))
	for _, p := range viewParams {
		m[p.name] = p
	}
	return m
}()

// value returns the option's value, and whether it is set.
func (p viewParam) value(o *ViewOptions) (interface{}, bool) {
	switch f := p.field(o).(type) {
	case **bool:
		if *f != nil {
			return **f, true
		}
	case **int:
		if *f != nil {
			return **f, true
		}
	case **string:
		if *f != nil {
			return **f, true
		}
	case *interface{}:
		if *f != nil {
			return *f, true
		}
	}
	return nil, false
}

func (p viewParam) encode(v interface{}) (string, error) {
	if p.encoding == encodeJSON {
		data, err := json.Marshal(v)
		if err != nil {
			return "", &kivik.Error{Status: http.StatusBadRequest, Err: errors.Wrapf(err, "couchdb: option %s", p.name)}
		}
		return string(data), nil
	}
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case string:
		return t, nil
	}
	return fmt.Sprint(v), nil
}

func (p viewParam) set(o *ViewOptions, v interface{}) error {
	switch f := p.field(o).(type) {
	case **bool:
		b, ok := v.(bool)
		if !ok {
			return p.invalidType("bool", v)
		}
		*f = &b
	case **int:
		i, err := toInt(v)
		switch {
		case errors.Is(err, errOutOfRange):
			return &kivik.Error{Status: http.StatusBadRequest, Err: errors.Errorf("couchdb: option %s value %v is out of range", p.name, v)}
		case err != nil:
			return p.invalidType("int", v)
		}
		*f = &i
	case **string:
		s, ok := v.(string)
		if !ok {
			return p.invalidType("string", v)
		}
		*f = &s
	case *interface{}:
		*f = v
	}
	return nil
}

func (p viewParam) invalidType(expected string, v interface{}) error {
	return &kivik.Error{Status: http.StatusBadRequest, Err: errors.Errorf("couchdb: option %s must be %s, not %T", p.name, expected, v)}
}

var (
	errNotInteger = errors.New("not an integer")
	errOutOfRange = errors.New("out of range")
)

// toInt accepts any integer type, as well as integral float64 and
// json.Number values, as produced by decoding JSON. Values which do not fit
// in an int yield errOutOfRange.
func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return intFromInt64(t)
	case uint:
		return intFromUint64(uint64(t))
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return intFromUint64(uint64(t))
	case uint64:
		return intFromUint64(t)
	case float64:
		switch {
		case math.IsInf(t, 0), t < float64(math.MinInt), t >= -float64(math.MinInt):
			return 0, errOutOfRange
		case t != math.Trunc(t):
			return 0, errNotInteger
		}
		return int(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return intFromInt64(i)
		}
		f, err := t.Float64()
		if err != nil {
			return 0, errNotInteger
		}
		return toInt(f)
	}
	return 0, errNotInteger
}

func intFromInt64(i int64) (int, error) {
	if int64(int(i)) != i {
		return 0, errOutOfRange
	}
	return int(i), nil
}

func intFromUint64(u uint64) (int, error) {
	if u > math.MaxInt {
		return 0, errOutOfRange
	}
	return int(u), nil
}

// ParseViewOptions converts a map of option names to values, such as one
// decoded from a configuration file, to a *ViewOptions. Unrecognized options,
// values of the wrong type and invalid values are rejected with a 400 status.
func ParseViewOptions(opts map[string]interface{}) (*ViewOptions, error) {
	keys := make([]string, 0, len(opts))
	for key := range opts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	o := &ViewOptions{}
	for _, key := range keys {
		p, ok := viewParamsByName[key]
		if !ok {
			return nil, &kivik.Error{Status: http.StatusBadRequest, Err: errors.Errorf("couchdb: unrecognized view option %q", key)}
		}
		if err := p.set(o, opts[key]); err != nil {
			return nil, err
		}
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks that the set options hold values CouchDB accepts.
func (o *ViewOptions) Validate() error {
	if o == nil {
		return nil
	}
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	verrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	msgs := make([]string, 0, len(verrors))
	for _, verror := range verrors {
		msgs = append(msgs, verror.Translate(translator))
	}
	return &kivik.Error{Status: http.StatusBadRequest, Err: errors.Errorf("couchdb: invalid view options: %s", strings.Join(msgs, "; "))}
}

// Values validates the options and returns them as query parameters. It
// returns nil if no option is set.
func (o *ViewOptions) Values() (url.Values, error) {
	if o == nil {
		return nil, nil
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	var query url.Values
	for _, p := range viewParams {
		v, ok := p.value(o)
		if !ok {
			continue
		}
		encoded, err := p.encode(v)
		if err != nil {
			return nil, err
		}
		if query == nil {
			query = url.Values{}
		}
		query.Set(p.name, encoded)
	}
	return query, nil
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
