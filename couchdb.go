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
	"github.com/couchkit/couchdb/chttp"
)

// Client is a connection to a CouchDB server.
type Client struct {
	*chttp.Client
}

// New returns a client for the CouchDB server at dsn. If credentials are
// included in the URL, they are used to authenticate using CookieAuth. If you
// wish to use a different auth mechanism, do not specify credentials here,
// and instead pass chttp.WithAuth.
func New(dsn string, opts ...chttp.Option) (*Client, error) {
	opts = append([]chttp.Option{chttp.WithUserAgent(UserAgent)}, opts...)
	chttpClient, err := chttp.New(dsn, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		Client: chttpClient,
	}, nil
}

// DB returns a handle on the named database. The database need not exist.
func (c *Client) DB(dbName string) (*DB, error) {
	if dbName == "" {
		return nil, missingArg("dbName")
	}
	return newDB(c.Resource(dbName), dbName), nil
}
