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
	"net/http"
	"net/url"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/couchkit/couchdb/chttp"
)

// DB is a handle on a single CouchDB database. It is immutable, and safe for
// concurrent use.
type DB struct {
	res  *chttp.Resource
	name string
}

func newDB(res *chttp.Resource, name string) *DB {
	return &DB{
		res:  res,
		name: name,
	}
}

// NewDB returns a handle on the database named by the last path element of
// dsn, which is otherwise interpreted as by New.
//
//	db, err := couchdb.NewDB("http://localhost:5984/mydb")
func NewDB(dsn string, opts ...chttp.Option) (*DB, error) {
	serverDSN, dbName, err := splitDSN(dsn)
	if err != nil {
		return nil, err
	}
	client, err := New(serverDSN, opts...)
	if err != nil {
		return nil, err
	}
	return client.DB(dbName)
}

// splitDSN separates the database name from a database URL.
func splitDSN(dsn string) (string, string, error) {
	if !strings.Contains(dsn, "://") {
		dsn = "http://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	escaped := strings.TrimSuffix(u.EscapedPath(), "/")
	idx := strings.LastIndex(escaped, "/")
	dbName, err := url.PathUnescape(escaped[idx+1:])
	if err != nil {
		return "", "", &kivik.Error{Status: http.StatusBadRequest, Err: err}
	}
	if dbName == "" {
		return "", "", missingArg("database name")
	}
	u.RawPath = escaped[:idx+1]
	u.Path, _ = url.PathUnescape(u.RawPath)
	return u.String(), dbName, nil
}

// NewDBFromResource returns a handle on the database at res. The database
// name is taken from the last path segment of res.
func NewDBFromResource(res *chttp.Resource) *DB {
	var name string
	if segments := res.Segments(); len(segments) > 0 {
		name = segments[len(segments)-1]
	}
	return newDB(res, name)
}

// Name returns the database name.
func (d *DB) Name() string {
	return d.name
}

// Resource returns the database's resource, from which requests for
// endpoints without a dedicated method may be made.
func (d *DB) Resource() *chttp.Resource {
	return d.res
}

// Exists returns true if the database exists. A 403 (Forbidden) status is
// reported as false, since the database cannot be used either way.
func (d *DB) Exists(ctx context.Context) (bool, error) {
	res, err := d.res.Do(ctx, http.MethodHead, nil)
	if err != nil {
		return false, err
	}
	switch {
	case res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices:
		chttp.CloseBody(res.Body)
		return true, nil
	case res.StatusCode == http.StatusForbidden, res.StatusCode == http.StatusNotFound:
		chttp.CloseBody(res.Body)
		return false, nil
	}
	return false, chttp.UnexpectedStatus(res)
}

// Info returns the database information object, as returned by the server.
func (d *DB) Info(ctx context.Context) (map[string]interface{}, error) {
	var info map[string]interface{}
	if _, err := d.res.DoJSON(ctx, http.MethodGet, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Create creates the database, and returns the ok field of the response.
func (d *DB) Create(ctx context.Context) (bool, error) {
	return okRequest(ctx, d.res, http.MethodPut, nil)
}

// Delete deletes the database, and returns the ok field of the response.
func (d *DB) Delete(ctx context.Context) (bool, error) {
	return okRequest(ctx, d.res, http.MethodDelete, nil)
}

// Compact starts compaction of the database.
func (d *DB) Compact(ctx context.Context) (bool, error) {
	return okRequest(ctx, d.res.Child("_compact"), http.MethodPost, nil)
}

// CompactView starts compaction of the views of the named design document.
// The _design/ prefix is optional.
func (d *DB) CompactView(ctx context.Context, ddoc string) (bool, error) {
	ddoc = strings.TrimPrefix(ddoc, prefixDesign)
	if ddoc == "" {
		return false, missingArg("ddoc")
	}
	return okRequest(ctx, d.res.Child("_compact", ddoc), http.MethodPost, nil)
}

// ViewCleanup removes view index files no longer required by any design
// document.
func (d *DB) ViewCleanup(ctx context.Context) (bool, error) {
	return okRequest(ctx, d.res.Child("_view_cleanup"), http.MethodPost, nil)
}

// EnsureFullCommit asks the server to commit any recent changes to disk.
func (d *DB) EnsureFullCommit(ctx context.Context) (bool, error) {
	return okRequest(ctx, d.res.Child("_ensure_full_commit"), http.MethodPost, nil)
}

func okRequest(ctx context.Context, res *chttp.Resource, method string, opts *chttp.Options) (bool, error) {
	var result struct {
		OK bool `json:"ok"`
	}
	if _, err := res.DoJSON(ctx, method, opts, &result); err != nil {
		return false, err
	}
	return result.OK, nil
}

// Members is a list of users and roles.
type Members struct {
	Names []string `json:"names,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Security is a database security object.
type Security struct {
	Admins  Members `json:"admins"`
	Members Members `json:"members"`
}

// Security returns the database's security object.
func (d *DB) Security(ctx context.Context) (*Security, error) {
	sec := &Security{}
	if _, err := d.res.Child("_security").DoJSON(ctx, http.MethodGet, nil, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// SetSecurity replaces the database's security object.
func (d *DB) SetSecurity(ctx context.Context, security *Security) error {
	if security == nil {
		return missingArg("security")
	}
	_, err := okRequest(ctx, d.res.Child("_security"), http.MethodPut, &chttp.Options{JSON: security})
	return err
}
